package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/pharmacy-backend/pkg/config"
	"github.com/angelmondragon/pharmacy-backend/pkg/logger"
)

var (
	ErrProjectIDRequired = errors.New("gcp project id is required")
	ErrTopicRequired     = errors.New("pubsub topic is required")
	ErrTopicNotFound     = errors.New("pubsub topic does not exist")
)

// Topic is a topic id qualified by its project.
type Topic struct {
	Project string
	ID      string
}

// ParseTopic accepts a short id ("notifications", resolved against project)
// or a full resource name ("projects/p/topics/t").
func ParseTopic(project, value string) (Topic, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Topic{}, ErrTopicRequired
	}
	if strings.HasPrefix(value, "projects/") {
		parts := strings.Split(value, "/")
		if len(parts) != 4 || parts[2] != "topics" || parts[1] == "" || parts[3] == "" {
			return Topic{}, fmt.Errorf("malformed topic name %q", value)
		}
		return Topic{Project: parts[1], ID: parts[3]}, nil
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return Topic{}, ErrProjectIDRequired
	}
	return Topic{Project: project, ID: value}, nil
}

func (t Topic) Name() string {
	return "projects/" + t.Project + "/topics/" + t.ID
}

// Client owns the Pub/Sub connection for one notifications topic.
type Client struct {
	client *pubsub.Client
	topic  Topic
}

// NewClient dials Pub/Sub and fails fast when the topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, topicName string, logg *logger.Logger) (*Client, error) {
	topic, err := ParseTopic(gcp.ProjectID, topicName)
	if err != nil {
		return nil, err
	}

	psClient, err := pubsub.NewClient(ctx, topic.Project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, topic: topic}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "topic", topic.Name()), "pubsub client initialized")
	return c, nil
}

// Publisher returns an ordered publisher: messages sharing an ordering key
// (one recipient) are delivered in publish order. Batching is kept short
// since notification volume is low and latency matters more.
func (c *Client) Publisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	p := c.client.Publisher(c.topic.Name())
	p.EnableMessageOrdering = true
	p.PublishSettings.DelayThreshold = 50 * time.Millisecond
	p.PublishSettings.CountThreshold = 50
	return p
}

func (c *Client) Topic() Topic {
	if c == nil {
		return Topic{}
	}
	return c.topic
}

// Ping checks that the topic still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic.Name()})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%w: %s", ErrTopicNotFound, c.topic.Name())
	default:
		return fmt.Errorf("checking topic %s: %w", c.topic.Name(), err)
	}
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
