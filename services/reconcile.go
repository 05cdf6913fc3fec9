// services/reconcile.go
//
// The reconciliation engine: turns a role description into an ordered
// sequence of remote primitives and folds their results into one outcome.
// Policy says what to converge; the fixed phase order says when.
package services

import (
	"context"

	"rolewarden/common"
	"rolewarden/utils"
)

// RolePrimitives is everything the engine needs from a target host. The
// engine never dials anything itself; a fake implementation drives it just
// as well as a live SSH-backed one.
type RolePrimitives interface {
	StatFile(ctx context.Context, path string) (bool, utils.Result)
	EnsureFile(ctx context.Context, path, state string) utils.Result
	WriteCompose(ctx context.Context, data map[string]any, dest string) utils.Result
	ApplyContainers(ctx context.Context, composeFile, state string, force bool) utils.Result
	ApplyImages(ctx context.Context, images []string, state string) utils.Result
}

// Outcome is the terminal report of one reconciliation run.
type Outcome struct {
	Changed bool   `json:"changed"`
	Failed  bool   `json:"failed"`
	Msg     string `json:"msg"`
}

// step is one phase of a run. A Failed result stops the run; Changed
// accumulates across phases either way.
type step func(ctx context.Context, p RolePrimitives, spec *RoleSpec) utils.Result

// Reconcile drives a role on a target toward its declared state.
//
// Check mode answers before anything is validated or touched: no primitive
// runs, no change is claimed. Otherwise the phases run in a fixed order:
// pull images, tear down containers, converge containers, remove images.
// The first failing primitive aborts the run with its message and whatever
// changes had accumulated by then.
func Reconcile(ctx context.Context, p RolePrimitives, raw map[string]string, complexArgs map[string]any, check bool) Outcome {
	if check {
		return Outcome{Changed: false, Failed: false, Msg: "ok"}
	}

	spec, err := NewRoleSpec(raw, complexArgs)
	if err != nil {
		return Outcome{Changed: false, Failed: true, Msg: err.Error()}
	}

	common.InfoLog("reconcile: role=%s images=%q containers=%q",
		spec.Role(), spec.ImagesState(), spec.ContainersState())

	changed := false
	for _, st := range []step{stepPullImages, stepRemoveContainers, stepConvergeContainers, stepRemoveImages} {
		res := st(ctx, p, spec)
		if res.Changed {
			changed = true
		}
		if res.Failed {
			common.WarnLog("reconcile: role=%s failed: %s", spec.Role(), res.Msg)
			return Outcome{Changed: changed, Failed: true, Msg: res.Msg}
		}
	}

	common.InfoLog("reconcile: role=%s done changed=%v", spec.Role(), changed)
	return Outcome{Changed: changed, Failed: false, Msg: "ok"}
}

// merge folds one primitive result into the step accumulator and reports
// whether the step must stop.
func merge(acc *utils.Result, r utils.Result) bool {
	if r.Changed {
		acc.Changed = true
	}
	if r.Failed {
		acc.Failed = true
		acc.Msg = r.Msg
		return true
	}
	return false
}

// stepPullImages makes referenced images available before any container
// work, for the policies that want them on the host.
func stepPullImages(ctx context.Context, p RolePrimitives, spec *RoleSpec) utils.Result {
	st := spec.ImagesState()
	if st != ImagePresent && st != ImageLatest {
		return utils.Result{}
	}
	common.DebugLog("reconcile: role=%s pulling images (%s)", spec.Role(), st)
	return p.ApplyImages(ctx, spec.Images(), string(st))
}

// stepRemoveContainers tears a role down. Containers and the compose file
// only go when the file is actually there; the role directory goes either
// way, so a half-removed role ends up fully gone.
func stepRemoveContainers(ctx context.Context, p RolePrimitives, spec *RoleSpec) utils.Result {
	if spec.ContainersState() != ContainersAbsent {
		return utils.Result{}
	}
	common.DebugLog("reconcile: role=%s removing containers", spec.Role())

	var acc utils.Result
	exists, res := p.StatFile(ctx, spec.ComposeFile())
	if merge(&acc, res) {
		return acc
	}
	if exists {
		if merge(&acc, p.ApplyContainers(ctx, spec.ComposeFile(), string(ContainersAbsent), true)) {
			return acc
		}
		if merge(&acc, p.EnsureFile(ctx, spec.ComposeFile(), utils.FileAbsent)) {
			return acc
		}
	}
	merge(&acc, p.EnsureFile(ctx, spec.ComposeDir(), utils.FileAbsent))
	return acc
}

// stepConvergeContainers materializes the role directory and compose file,
// then starts the stack for the run-state policies. "present" stops after
// the file is in place.
func stepConvergeContainers(ctx context.Context, p RolePrimitives, spec *RoleSpec) utils.Result {
	st := spec.ContainersState()
	if st != ContainersPresent && st != ContainersStarted && st != ContainersRestarted {
		return utils.Result{}
	}
	common.DebugLog("reconcile: role=%s converging containers (%s)", spec.Role(), st)

	var acc utils.Result
	if merge(&acc, p.EnsureFile(ctx, spec.ComposeDir(), utils.FileDirectory)) {
		return acc
	}
	if merge(&acc, p.WriteCompose(ctx, spec.Data(), spec.ComposeFile())) {
		return acc
	}
	if st == ContainersStarted || st == ContainersRestarted {
		merge(&acc, p.ApplyContainers(ctx, spec.ComposeFile(), string(ContainersStarted), st == ContainersRestarted))
	}
	return acc
}

// stepRemoveImages drops the role's images last, after nothing references
// them anymore.
func stepRemoveImages(ctx context.Context, p RolePrimitives, spec *RoleSpec) utils.Result {
	if spec.ImagesState() != ImageAbsent {
		return utils.Result{}
	}
	common.DebugLog("reconcile: role=%s removing images", spec.Role())
	return p.ApplyImages(ctx, spec.Images(), string(ImageAbsent))
}
