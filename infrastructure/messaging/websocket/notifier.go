package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"go.uber.org/zap"

	"feedrank/domain/events"
)

// PostAPI is the subset of the API Gateway management client the notifier uses
type PostAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// ClientFactory returns a management client for a connection's endpoint
type ClientFactory func(endpoint string) PostAPI

// Message is what clients receive. Clients refetch their feed on feed_changed.
type Message struct {
	Type        string    `json:"type"`
	Event       string    `json:"event"`
	AlgorithmID string    `json:"algorithmId"`
	Timestamp   time.Time `json:"timestamp"`
}

// eventDetail holds the fields shared by the algorithm events
type eventDetail struct {
	AlgorithmID string    `json:"algorithm_id"`
	UserID      string    `json:"user_id"`
	AuthorID    string    `json:"author_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// MessageFromEvent maps an algorithm event to the user it concerns. Events
// that do not change anybody's feed are skipped.
func MessageFromEvent(detailType string, detail json.RawMessage) (string, *Message, error) {
	var recipient func(eventDetail) string
	switch detailType {
	case events.TypeAlgorithmActivated, events.TypeAlgorithmUninstalled:
		recipient = func(d eventDetail) string { return d.UserID }
	case events.TypeAlgorithmUpdated, events.TypeAlgorithmDeleted:
		recipient = func(d eventDetail) string { return d.AuthorID }
	default:
		return "", nil, nil
	}

	var d eventDetail
	if err := json.Unmarshal(detail, &d); err != nil {
		return "", nil, fmt.Errorf("failed to parse %s detail: %w", detailType, err)
	}
	userID := recipient(d)
	if userID == "" {
		return "", nil, nil
	}

	return userID, &Message{
		Type:        "feed_changed",
		Event:       detailType,
		AlgorithmID: d.AlgorithmID,
		Timestamp:   d.Timestamp,
	}, nil
}

// Notifier pushes messages to every connection of a user
type Notifier struct {
	store     *ConnectionStore
	clientFor ClientFactory
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]PostAPI
}

// NewNotifier creates a notifier
func NewNotifier(store *ConnectionStore, clientFor ClientFactory, logger *zap.Logger) *Notifier {
	return &Notifier{
		store:     store,
		clientFor: clientFor,
		logger:    logger,
		clients:   make(map[string]PostAPI),
	}
}

// Notify sends msg to the user's connections and returns how many received it.
// Connections API Gateway reports as gone are removed.
func (n *Notifier) Notify(ctx context.Context, userID string, msg *Message) (int, error) {
	conns, err := n.store.ForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(conns) == 0 {
		return 0, nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	sent := 0
	var errs []error
	for _, conn := range conns {
		_, err := n.client(conn.Endpoint).PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(conn.ConnectionID),
			Data:         data,
		})
		var gone *apigwtypes.GoneException
		switch {
		case err == nil:
			sent++
		case errors.As(err, &gone):
			n.logger.Info("Removing stale connection", zap.String("connectionID", conn.ConnectionID))
			if err := n.store.Delete(ctx, conn.ConnectionID); err != nil {
				n.logger.Warn("Failed to remove stale connection", zap.String("connectionID", conn.ConnectionID), zap.Error(err))
			}
		default:
			errs = append(errs, fmt.Errorf("connection %s: %w", conn.ConnectionID, err))
		}
	}

	n.logger.Debug("Notified user",
		zap.String("userID", userID),
		zap.String("event", msg.Event),
		zap.Int("sent", sent),
		zap.Int("failed", len(errs)),
	)
	return sent, errors.Join(errs...)
}

func (n *Notifier) client(endpoint string) PostAPI {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.clients[endpoint]
	if !ok {
		c = n.clientFor(endpoint)
		n.clients[endpoint] = c
	}
	return c
}
