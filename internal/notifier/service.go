package notifier

import (
	"context"
	"fmt"
	"log"

	"github.com/pawzr/marketplace/internal/auth"
	kafkax "github.com/pawzr/marketplace/internal/kafka"
	"github.com/pawzr/marketplace/internal/mailer"
	"github.com/pawzr/marketplace/internal/orders"
	"github.com/pawzr/marketplace/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

type UserLookup interface {
	Get(ctx context.Context, id string) (auth.User, error)
}

// Service turns order events into emails.
type Service struct {
	Redis       redis.Cmdable
	Users       UserLookup
	Mail        mailer.Sender
	BaseURL     string
	ServiceName string
}

// HandleEvent is installed as the consumer handler. A returned error releases
// the dedup claim so the consumer's retry of the same message sends the email.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// poison message; nothing to retry
		log.Printf("notifier: bad envelope topic=%s offset=%d: %v", m.Topic, m.Offset, err)
		return nil
	}
	if env.EventType != orders.EventOrderCreated && env.EventType != orders.EventOrderStatusChanged {
		return nil
	}

	first, err := redisx.Claim(ctx, s.Redis, s.ServiceName, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderCreated:
		err = s.orderCreated(ctx, env)
	case orders.EventOrderStatusChanged:
		err = s.statusChanged(ctx, env)
	}
	if err != nil {
		_ = redisx.Forget(ctx, s.Redis, s.ServiceName, env.EventID)
		return fmt.Errorf("%s %s: %w", env.EventType, env.CorrelationID, err)
	}
	return nil
}

func (s *Service) orderCreated(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
	if err != nil {
		return err
	}
	supplier, err := s.Users.Get(ctx, p.SupplierID)
	if err != nil {
		return err
	}
	subject, body, err := mailer.NewOrderEmail(supplier.Name, s.BaseURL+orders.SupplierOrdersLink, p)
	if err != nil {
		return err
	}
	return s.Mail.Send(ctx, supplier.Email, subject, body)
}

func (s *Service) statusChanged(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		return err
	}
	// the party who made the change already knows
	recipient, link := p.BuyerID, s.BaseURL+"/dashboard/orders/"+p.OrderID
	if p.ChangedBy == p.BuyerID {
		recipient, link = p.SupplierID, s.BaseURL+orders.SupplierOrdersLink
	}
	u, err := s.Users.Get(ctx, recipient)
	if err != nil {
		return err
	}
	subject, body, err := mailer.StatusEmail(u.Name, link, p)
	if err != nil {
		return err
	}
	return s.Mail.Send(ctx, u.Email, subject, body)
}
