package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"gopkg.in/gomail.v2"
)

// NotificationService fires best-effort events when money moves. Delivery
// failures are logged and swallowed: they must never roll back or fail the
// ledger operation that triggered them.
type NotificationService struct {
	db     *sql.DB
	redis  *redis.Client
	dialer *gomail.Dialer
	from   string
}

// NotificationEvent is the payload queued for downstream delivery workers.
type NotificationEvent struct {
	Kind      string    `json:"kind"`
	OwnerType string    `json:"owner_type"`
	OwnerID   int64     `json:"owner_id"`
	Amount    int64     `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewNotificationService(db *sql.DB, redisClient *redis.Client) *NotificationService {
	ns := &NotificationService{db: db, redis: redisClient}

	host := viper.GetString("smtp.host")
	if host != "" {
		ns.dialer = gomail.NewDialer(host,
			viper.GetInt("smtp.port"),
			viper.GetString("smtp.user"),
			viper.GetString("smtp.password"))
		ns.from = viper.GetString("smtp.from")
	} else {
		log.Println("SMTP not configured, notification emails disabled")
	}

	return ns
}

func (ns *NotificationService) CommissionEarned(consultantID, amount int64) {
	ns.publish(NotificationEvent{
		Kind:      "COMMISSION_EARNED",
		OwnerType: "CONSULTANT",
		OwnerID:   consultantID,
		Amount:    amount,
		CreatedAt: time.Now(),
	})
	ns.email("CONSULTANT", consultantID, "Commission earned",
		"A new commission has been credited to your wallet.")
}

func (ns *NotificationService) WithdrawalDecided(consultantID, amount int64, status string) {
	ns.publish(NotificationEvent{
		Kind:      "WITHDRAWAL_" + status,
		OwnerType: "CONSULTANT",
		OwnerID:   consultantID,
		Amount:    amount,
		CreatedAt: time.Now(),
	})
	ns.email("CONSULTANT", consultantID, "Withdrawal "+status,
		"Your commission withdrawal request has been processed.")
}

func (ns *NotificationService) RefundEvent(companyID, amount int64, status string) {
	ns.publish(NotificationEvent{
		Kind:      "REFUND_" + status,
		OwnerType: "COMPANY",
		OwnerID:   companyID,
		Amount:    amount,
		CreatedAt: time.Now(),
	})
}

// publish queues the event on Redis for the delivery workers. Missing Redis
// or a failed push only logs.
func (ns *NotificationService) publish(event NotificationEvent) {
	if ns.redis == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[NOTIFY] Failed to marshal event %s: %v", event.Kind, err)
		return
	}

	if err := ns.redis.RPush(context.Background(), "notification_events", data).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to queue event %s for %s %d: %v", event.Kind, event.OwnerType, event.OwnerID, err)
	}
}

func (ns *NotificationService) email(ownerType string, ownerID int64, subject, body string) {
	if ns.dialer == nil {
		return
	}

	recipient, err := ns.lookupEmail(ownerType, ownerID)
	if err != nil {
		log.Printf("[NOTIFY] No email for %s %d: %v", ownerType, ownerID, err)
		return
	}

	m := gomail.NewMessage()
	m.SetHeader("From", ns.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := ns.dialer.DialAndSend(m); err != nil {
		log.Printf("[NOTIFY] Failed to send %q to %s: %v", subject, recipient, err)
	}
}

func (ns *NotificationService) lookupEmail(ownerType string, ownerID int64) (string, error) {
	table := "companies"
	if ownerType == "CONSULTANT" {
		table = "consultants"
	}

	var email string
	err := ns.db.QueryRow(`SELECT email FROM `+table+` WHERE id = $1`, ownerID).Scan(&email)
	return email, err
}
