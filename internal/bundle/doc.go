// Package bundle turns a platform template, application metadata and an
// unpacked image into an OCI bundle configuration.
//
// [Run] drives the whole pipeline: compatibility check, dependency walk,
// library matching, configuration generation and output. Each stage is
// also usable on its own through the compat, walker and matcher packages
// and through [Generate] and [Write] here.
//
// The output directory receives two files: the runtime configuration
// ("config.json") and the plan ("bundlegen.plan.json") describing which
// libraries were taken from the device, which were kept from the image and
// which image files were removed. Both are written atomically.
//
// Example usage:
//
//	result, err := bundle.Run(ctx, bundle.Options{
//	    Platform:          p,
//	    App:               app,
//	    Rootfs:            rootfs,
//	    Output:            "out/wayland-egl-test",
//	    DependencyWalking: true,
//	    Mode:              matcher.Normal,
//	})
//	if err != nil {
//	    return err
//	}
//	for _, w := range result.Warnings {
//	    slog.Warn(w.Error())
//	}
package bundle
