package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"bitbucket.org/mmdatafocus/hotel_cashflow/config"
	"bitbucket.org/mmdatafocus/hotel_cashflow/utils"
	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PubSubMessage is the push envelope Pub/Sub posts to /pubsub.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// retryable reports whether Pub/Sub should redeliver after err. Validation failures are
// poison messages; retrying them only loops.
func retryable(err error) bool {
	return err != nil && !utils.IsKind(err, utils.KindValidation)
}

func commandPubSubHandler(a *application) gin.HandlerFunc {
	return func(c *gin.Context) {
		var msg PubSubMessage
		logger := a.logger

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "commandSubscriber.go", "commandPubSubHandler", "io.ReadAll", nil, err)
			// Malformed request body: ack/drop to avoid infinite retries.
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		if err := json.Unmarshal(body, &msg); err != nil {
			config.LogError(logger, "commandSubscriber.go", "commandPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		var m config.CommandMessage
		if err := json.Unmarshal(msg.Message.Data, &m); err != nil {
			config.LogError(logger, "commandSubscriber.go", "commandPubSubHandler", "Unmarshal command message", string(msg.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}

		if m.CorrelationId == "" {
			if cid, ok := utils.GetCorrelationIdFromContext(c.Request.Context()); ok {
				m.CorrelationId = cid
			}
		}
		if err := a.service().ProcessCommand(c.Request.Context(), msg.Message.ID, m); err != nil {
			fields := logrus.Fields{
				"field":          "commandPubSubHandler",
				"command":        m.Command,
				"message_id":     msg.Message.ID,
				"correlation_id": m.CorrelationId,
			}
			if !retryable(err) {
				logger.WithFields(fields).Warn("dropping invalid command: " + err.Error())
				c.Status(http.StatusNoContent)
				return
			}
			logger.WithFields(fields).Error("command processing failed: " + err.Error())
			// Non-2xx tells Pub/Sub to retry (and potentially route to DLQ).
			c.Status(http.StatusInternalServerError)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// RunCommandSubscriber pulls command messages from PUBSUB_COMMAND_SUBSCRIPTION until ctx ends.
func RunCommandSubscriber(ctx context.Context, a *application) error {
	logger := a.logger
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	subName := os.Getenv("PUBSUB_COMMAND_SUBSCRIPTION")
	if subName == "" {
		return errors.New("PUBSUB_COMMAND_SUBSCRIPTION is required")
	}
	topic, err := config.CreateTopicIfNotExists(client, os.Getenv("PUBSUB_COMMAND_TOPIC"))
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subName, topic)
	if err != nil {
		return err
	}
	// every command writes the whole ledger, so there is no point in running them side by side
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m := config.CommandMessage{}
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			config.LogError(logger, "commandSubscriber.go", "RunCommandSubscriber", "Unmarshaling command message", string(msg.Data), err)
			msg.Ack()
			return
		}
		if m.CorrelationId == "" {
			m.CorrelationId = msg.ID
		}
		if err := a.service().ProcessCommand(ctx, msg.ID, m); err != nil && retryable(err) {
			logger.WithFields(logrus.Fields{
				"field":      "RunCommandSubscriber",
				"command":    m.Command,
				"message_id": msg.ID,
			}).Error("command processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	go func() {
		if err := sub.Receive(ctx, callback); err != nil {
			config.LogError(logger, "commandSubscriber.go", "RunCommandSubscriber", "Failed to receive messages", nil, err)
		}
	}()
	return nil
}
