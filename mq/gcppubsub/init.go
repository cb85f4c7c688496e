package gcppubsub

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

var ErrNoProjectID = errors.New("gcppubsub: GCP_PROJECT_ID must be set")

// NewClient connects to Pub/Sub for projectID. PUBSUB_EMULATOR_HOST is
// honoured by the client library.
func NewClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if projectID == "" {
		return nil, ErrNoProjectID
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Pub/Sub client for project %s: %w", projectID, err)
	}
	return client, nil
}
