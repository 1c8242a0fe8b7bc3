// Package registry tracks model versions through their lifecycle and owns
// the single piece of shared mutable state on the inference hot path: the
// active-model slot. Many concurrent inferences read the slot; activation
// writes are rare, so access goes through an RWMutex rather than ad hoc
// memory-ordering tricks.
package registry

import (
	"sync"

	"deltagate/internal/domain"
	"deltagate/pkg/status"
)

// Registry is the in-memory model store. It satisfies the same contract a
// durable implementation would; tests and the FFI wiring use it directly.
type Registry struct {
	mu       sync.RWMutex
	versions map[domain.ModelID]map[domain.VersionName]domain.ModelVersion
	order    map[domain.ModelID][]domain.VersionName
	active   map[domain.ModelID]domain.VersionName
	// current is the guarded slot infer reads. It is an explicit handle,
	// not ambient global state, so the single-writer/many-reader
	// discipline stays testable.
	current *domain.ModelVersion
}

func New() *Registry {
	return &Registry{
		versions: make(map[domain.ModelID]map[domain.VersionName]domain.ModelVersion),
		order:    make(map[domain.ModelID][]domain.VersionName),
		active:   make(map[domain.ModelID]domain.VersionName),
	}
}

// Put records a new model version. The version arrives as Draft or Admitted
// depending on its gate result; Put never admits anything itself.
func (r *Registry) Put(model domain.ModelVersion) error {
	if model.Status == domain.StatusActive {
		return status.Invalid("model_cannot_arrive_active")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, ok := r.versions[model.ID]
	if !ok {
		byVersion = make(map[domain.VersionName]domain.ModelVersion)
		r.versions[model.ID] = byVersion
	}
	if _, exists := byVersion[model.Version]; exists {
		return status.Invalid("model_version_exists")
	}
	byVersion[model.Version] = model
	r.order[model.ID] = append(r.order[model.ID], model.Version)
	return nil
}

// Get returns the stored version.
func (r *Registry) Get(id domain.ModelID, version domain.VersionName) (domain.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model, ok := r.versions[id][version]
	if !ok {
		return domain.ModelVersion{}, status.ModelMissing("model_version")
	}
	return model, nil
}

// Latest returns the newest stored version for the model, regardless of
// gate outcome. Callers that need an activatable version use LatestAdmitted.
func (r *Registry) Latest(id domain.ModelID) (domain.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.order[id]
	if len(versions) == 0 {
		return domain.ModelVersion{}, status.ModelMissing("model_unknown")
	}
	return r.versions[id][versions[len(versions)-1]], nil
}

// LatestAdmitted returns the newest version eligible for activation.
func (r *Registry) LatestAdmitted(id domain.ModelID) (domain.ModelVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.order[id]
	for i := len(versions) - 1; i >= 0; i-- {
		model := r.versions[id][versions[i]]
		if model.Status == domain.StatusAdmitted || model.Status == domain.StatusActive {
			return model, nil
		}
	}
	return domain.ModelVersion{}, status.ModelMissing("model_not_admitted")
}

// Activate promotes an admitted version to Active and installs it in the
// current slot. version may be zero, meaning the newest admitted version.
// At most one version per model ID is Active; the previous one is demoted
// back to Admitted in the same critical section.
func (r *Registry) Activate(id domain.ModelID, version domain.VersionName) (domain.ModelVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.resolveLocked(id, version)
	if err != nil {
		return domain.ModelVersion{}, err
	}
	if target.Status == domain.StatusDraft {
		return domain.ModelVersion{}, status.PolicyDenied("model_not_admitted")
	}
	if target.Status == domain.StatusRetired {
		return domain.ModelVersion{}, status.ModelMissing("model_retired")
	}

	if prev, ok := r.active[id]; ok && prev != target.Version {
		demoted := r.versions[id][prev]
		demoted.Status = domain.StatusAdmitted
		r.versions[id][prev] = demoted
	}

	target.Status = domain.StatusActive
	r.versions[id][target.Version] = target
	r.active[id] = target.Version
	r.current = &target
	return target, nil
}

// Retire removes a version from service permanently. Retiring the current
// slot empties it; artifacts outlive the in-memory record.
func (r *Registry) Retire(id domain.ModelID, version domain.VersionName) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, ok := r.versions[id][version]
	if !ok {
		return status.ModelMissing("model_version")
	}
	model.Status = domain.StatusRetired
	r.versions[id][version] = model
	if r.active[id] == version {
		delete(r.active, id)
	}
	if r.current != nil && r.current.ID == id && r.current.Version == version {
		r.current = nil
	}
	return nil
}

// Active returns a copy of the current slot. The boolean is false when no
// model has been activated yet.
func (r *Registry) Active() (domain.ModelVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return domain.ModelVersion{}, false
	}
	return *r.current, true
}

func (r *Registry) resolveLocked(id domain.ModelID, version domain.VersionName) (domain.ModelVersion, error) {
	if !version.IsZero() {
		model, ok := r.versions[id][version]
		if !ok {
			return domain.ModelVersion{}, status.ModelMissing("model_version")
		}
		return model, nil
	}
	versions := r.order[id]
	for i := len(versions) - 1; i >= 0; i-- {
		model := r.versions[id][versions[i]]
		if model.Status == domain.StatusAdmitted || model.Status == domain.StatusActive {
			return model, nil
		}
	}
	return domain.ModelVersion{}, status.ModelMissing("model_not_admitted")
}
