// Package walker computes the transitive closure of shared libraries
// required by an application.
//
// Starting from the declared root libraries (graphics libraries and plugin
// dependencies), [Walk] follows the "dependsOn" edges of the library catalog
// breadth first. A visited set guards every expansion, so cyclic
// dependencies terminate without error. Names that are not in the catalog
// stay in the closure but are recorded as unresolved; the matcher then only
// considers the device's copy for them.
//
// Expansion of a frontier may run on several goroutines ([WithWorkers]).
// Each library name is claimed exactly once under a lock, and the closure is
// sorted before it is returned, so the result is identical to a sequential
// walk.
//
// Example usage:
//
//	closure, err := walker.Walk(ctx, app.Roots(), cat, walker.WithWorkers(4))
//	if err != nil {
//	    return err
//	}
//	for _, w := range closure.Unresolved {
//	    slog.Warn(w.Error())
//	}
package walker
