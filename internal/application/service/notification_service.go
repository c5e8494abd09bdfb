package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/inspector-vouchers/internal/application/dispatcher"
	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/event"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

// Subscriber is the part of the dispatcher notification handlers register with
type Subscriber interface {
	SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler)
}

// NotificationService tells the next person in line that a voucher or
// assignment request needs them.
type NotificationService interface {
	// Register subscribes every notification handler
	Register(sub Subscriber)

	HandleVoucherSubmitted(ctx context.Context, evt *event.Event) error
	HandleVoucherSupervisorApproved(ctx context.Context, evt *event.Event) error
	HandleVoucherDecided(ctx context.Context, evt *event.Event) error
	HandleVoucherReminder(ctx context.Context, evt *event.Event) error
	HandleAssignmentResolved(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	voucherRepo port.VoucherRepository
	personRepo  port.PersonRepository
	notifier    port.Notifier
	logger      Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	voucherRepo port.VoucherRepository,
	personRepo port.PersonRepository,
	notifier port.Notifier,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		voucherRepo: voucherRepo,
		personRepo:  personRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

func (s *notificationServiceImpl) Register(sub Subscriber) {
	sub.SubscribeNamed(event.TypeVoucherSubmitted, "notify-supervisor", s.HandleVoucherSubmitted)
	sub.SubscribeNamed(event.TypeVoucherSupervisorApproved, "notify-fleet-managers", s.HandleVoucherSupervisorApproved)
	sub.SubscribeNamed(event.TypeVoucherApproved, "notify-claimant-approved", s.HandleVoucherDecided)
	sub.SubscribeNamed(event.TypeVoucherRejected, "notify-claimant-rejected", s.HandleVoucherDecided)
	sub.SubscribeNamed(event.TypeVoucherReminder, "remind-approver", s.HandleVoucherReminder)
	sub.SubscribeNamed(event.TypeAssignmentResolved, "notify-requester", s.HandleAssignmentResolved)
}

// HandleVoucherSubmitted notifies the resolved supervisor-stage approver
func (s *notificationServiceImpl) HandleVoucherSubmitted(ctx context.Context, evt *event.Event) error {
	v, owner, err := s.voucherAndOwner(ctx, evt)
	if err != nil {
		return err
	}

	approverID := evt.GetPayloadInt("approver_id")
	if approverID == 0 && v.PendingApproverID != nil {
		approverID = *v.PendingApproverID
	}

	return s.notifyPerson(ctx, approverID,
		"Voucher awaiting your approval",
		fmt.Sprintf("%s submitted the %02d/%d travel voucher #%d for %s.", owner.DisplayName(), v.Month, v.Year, v.ID, v.TotalAmount.StringFixed(2)))
}

// HandleVoucherSupervisorApproved notifies every active fleet manager except the claimant
func (s *notificationServiceImpl) HandleVoucherSupervisorApproved(ctx context.Context, evt *event.Event) error {
	v, owner, err := s.voucherAndOwner(ctx, evt)
	if err != nil {
		return err
	}

	managers, err := s.personRepo.ListByRole(ctx, entity.RoleFleetManager)
	if err != nil {
		return fmt.Errorf("list fleet managers: %w", err)
	}

	body := fmt.Sprintf("%s's %02d/%d travel voucher #%d was approved by %s and awaits fleet approval.",
		owner.DisplayName(), v.Month, v.Year, v.ID, v.SupervisorSignature)

	var errList []error
	for _, m := range managers {
		if !m.IsFleetManager() || m.ID == v.PersonID {
			continue
		}
		if err := s.send(ctx, m, "Voucher awaiting fleet approval", body); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// HandleVoucherDecided tells the claimant their voucher was approved or rejected
func (s *notificationServiceImpl) HandleVoucherDecided(ctx context.Context, evt *event.Event) error {
	v, owner, err := s.voucherAndOwner(ctx, evt)
	if err != nil {
		return err
	}

	var title, body string
	switch evt.Type {
	case event.TypeVoucherApproved:
		title = "Voucher approved"
		body = fmt.Sprintf("Your %02d/%d travel voucher #%d for %s was approved.", v.Month, v.Year, v.ID, v.TotalAmount.StringFixed(2))
	case event.TypeVoucherRejected:
		title = "Voucher returned"
		body = fmt.Sprintf("Your %02d/%d travel voucher #%d was returned: %s", v.Month, v.Year, v.ID, evt.GetPayloadString("reason"))
	default:
		return nil
	}

	return s.send(ctx, owner, title, body)
}

// HandleVoucherReminder re-notifies whoever the voucher is waiting on
func (s *notificationServiceImpl) HandleVoucherReminder(ctx context.Context, evt *event.Event) error {
	v, owner, err := s.voucherAndOwner(ctx, evt)
	if err != nil {
		return err
	}

	switch v.Status {
	case workflow.StateSubmitted:
		if v.PendingApproverID == nil {
			return nil
		}
		return s.notifyPerson(ctx, *v.PendingApproverID,
			"Reminder: voucher awaiting your approval",
			fmt.Sprintf("%s's %02d/%d travel voucher #%d is still waiting for supervisor approval.", owner.DisplayName(), v.Month, v.Year, v.ID))
	case workflow.StateSupervisorApproved:
		return s.HandleVoucherSupervisorApproved(ctx, evt)
	default:
		// already moved on since the reminder was raised
		return nil
	}
}

// HandleAssignmentResolved tells the requesting supervisor the outcome
func (s *notificationServiceImpl) HandleAssignmentResolved(ctx context.Context, evt *event.Event) error {
	requesterID := evt.GetPayloadInt("requester_id")
	inspectorID := evt.GetPayloadInt("inspector_id")

	return s.notifyPerson(ctx, requesterID,
		"Assignment request "+evt.GetPayloadString("status"),
		fmt.Sprintf("Your request #%d to supervise person %d was %s.", evt.SubjectID, inspectorID, evt.GetPayloadString("status")))
}

func (s *notificationServiceImpl) voucherAndOwner(ctx context.Context, evt *event.Event) (*entity.Voucher, *entity.Person, error) {
	v, err := s.voucherRepo.GetByID(ctx, evt.SubjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("get voucher: %w", err)
	}
	if v == nil {
		return nil, nil, fmt.Errorf("voucher %d not found", evt.SubjectID)
	}
	owner, err := s.personRepo.GetByID(ctx, v.PersonID)
	if err != nil {
		return nil, nil, fmt.Errorf("get owner: %w", err)
	}
	if owner == nil {
		return nil, nil, fmt.Errorf("person %d not found", v.PersonID)
	}
	return v, owner, nil
}

func (s *notificationServiceImpl) notifyPerson(ctx context.Context, personID int64, title, body string) error {
	if personID == 0 {
		return nil
	}
	p, err := s.personRepo.GetByID(ctx, personID)
	if err != nil {
		return fmt.Errorf("get recipient: %w", err)
	}
	if p == nil {
		s.logger.Info("Notification recipient not found", "person_id", personID)
		return nil
	}
	return s.send(ctx, p, title, body)
}

func (s *notificationServiceImpl) send(ctx context.Context, p *entity.Person, title, body string) error {
	msg := port.Message{
		RecipientID: p.ID,
		Handle:      p.LarkOpenID,
		Title:       title,
		Body:        body,
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Error("Failed to send notification", "error", err, "person_id", p.ID, "title", title)
		return fmt.Errorf("notify person %d: %w", p.ID, err)
	}

	s.logger.Info("Notification sent", "person_id", p.ID, "title", title)
	return nil
}
