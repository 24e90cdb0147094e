package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/mgenware/j9/v3"
	"github.com/mgenware/ku-natives"
	"github.com/mgenware/ku-natives/example"
	"github.com/mgenware/ku-natives/gate"
	"github.com/mgenware/ku-natives/inspect"
	"github.com/mgenware/ku-natives/runner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tunnel := ku.CreateDefaultTunnel()
	platform, err := ku.DetectPlatform("", 0)
	if err != nil {
		tunnel.Logger().Log(j9.LogLevelWarning, err.Error())
		os.Exit(1)
	}
	tunnel.Logger().Log(j9.LogLevelWarning, "Building target: "+example.Ogg.Name+" for "+platform.String())

	logger := ku.NewLogger(1, os.Stderr)
	bc := ku.NewBuildContext(&ku.BuildContextInitOptions{
		Platform:  platform,
		Config:    ku.DefaultConfig(),
		Runner:    runner.NewExec(logger),
		Gate:      gate.New(gate.Detect(false)),
		Inspector: inspect.NewTunnelInspector(tunnel),
		Logger:    logger,
	})

	res, err := example.BuildOgg(ctx, bc)
	ku.PrintSummary(os.Stdout, []*ku.TaskResult{res})
	if err != nil {
		os.Exit(1)
	}
}
