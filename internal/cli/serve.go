package cli

import (
	"github.com/spf13/cobra"

	"github.com/drblury/pulseflow/internal/runtime"
	"github.com/drblury/pulseflow/internal/runtime/logging"
)

// pipelineHandlerName names the router handler on the ingress topic.
const pipelineHandlerName = "pulseflow-pipeline"

func (a *App) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume the ingress topic and serve the push endpoint",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
}

func (a *App) runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	stages, err := a.newStages()
	if err != nil {
		return err
	}
	p, closeStore, err := a.buildPipeline(ctx, stages)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := runtime.NewService(ctx, a.conf, a.logger, runtime.ServiceDependencies{
		Registry:       a.registry(),
		Stages:         stages,
		DisableSignals: true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	pc := a.conf.Pipeline.WithDefaults()
	if err := runtime.RegisterMessageHandler(svc, runtime.MessageHandlerRegistration{
		Name:         pipelineHandlerName,
		ConsumeQueue: pc.IngressTopic,
		Handler:      p.Handler(),
	}); err != nil {
		return err
	}
	if pc.PushPort > 0 {
		svc.RegisterHTTPHandler(pc.PushPort, pc.PushPath, p.PushHandler())
	}

	a.logger.Info("Serving", logging.LogFields{
		"transport":     a.conf.PubSubSystem,
		"ingress_topic": pc.IngressTopic,
		"push_port":     pc.PushPort,
	})
	return svc.Start(ctx)
}
