package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{p: p}
}

func (g *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

// Stop flushes pending messages when the service shuts down.
func (g *gcpPublisher) Stop() {
	g.p.Stop()
}
