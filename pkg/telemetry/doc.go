// Package telemetry carries the observability stack of a build: structured
// logging (zerolog), run and task spans (OpenTelemetry), Prometheus collectors,
// and a lifecycle event publisher.
//
// Every component has a no-op form, so library callers can pass Nop() and the
// executor never checks for nil.
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	log := tel.Logger.NewComponentLogger("executor").WithRunID(runID)
//	log.Infof("running %d tasks", n)
//
// Metrics are registered on a private registry and exposed with Metrics.Serve
// when --metrics-addr is given. Events are published as run.started,
// run.completed, run.failed and task.started, task.completed, task.failed,
// task.skipped.
package telemetry
