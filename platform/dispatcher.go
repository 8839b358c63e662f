package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vouchbank/core"
	"vouchbank/native/ledger"
	"vouchbank/native/session"
	"vouchbank/native/vouch"
)

// Channel names containing this substring are watched for vouch activity.
const vouchChannelKeyword = "vouch"

// noticeTTL is how long transient notices (cooldown, errors) stay visible.
const noticeTTL = 10 * time.Second

const (
	componentVouchApprove = "vouch:approve"
	componentVouchDeny    = "vouch:deny"
	componentRedeem       = "redeem"
)

// Dispatcher translates platform traffic into node operations and the
// resulting outcomes back into outbound messages. It is connector-agnostic:
// anything that can produce Message/Interaction values and implement Sender
// can drive it.
type Dispatcher struct {
	node   *core.Node
	sender Sender
	logger *slog.Logger
}

// NewDispatcher wires the dispatcher. A nil logger falls back to the default.
func NewDispatcher(node *core.Node, sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{node: node, sender: sender, logger: logger}
}

// HandleMessage runs the vouch pipeline for an inbound message. Messages from
// bots, outside a guild, or outside a vouch channel are ignored.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) error {
	if msg.AuthorIsBot || msg.GuildID == "" {
		return nil
	}
	if !strings.Contains(strings.ToLower(msg.ChannelName), vouchChannelKeyword) {
		return nil
	}

	candidate, evidenceURL := buildCandidate(msg)
	outcome, err := d.node.SubmitVouch(msg.GuildID, msg.AuthorID, candidate, msg.ChannelID, msg.MessageID, evidenceURL)
	if err != nil {
		d.logger.Error("vouch submission failed", "guild", msg.GuildID, "user", msg.AuthorID, "err", err)
		return err
	}

	switch {
	case !outcome.Qualified:
		return nil
	case outcome.Throttled:
		wait := outcome.RetryAfter.Round(time.Second)
		return d.sender.SendChannel(ctx, msg.ChannelID, Outbound{
			Content:     fmt.Sprintf("<@%s> please wait %s before vouching again.", msg.AuthorID, wait),
			DeleteAfter: noticeTTL,
		})
	case outcome.AutoAwarded:
		return d.sender.SendChannel(ctx, msg.ChannelID, Outbound{
			Content: fmt.Sprintf("<@%s> earned a point for vouching %s! Balance: %d", msg.AuthorID, outcome.MatchedRole, outcome.NewBalance),
		})
	default:
		pending := outcome.Pending
		err := d.sender.SendChannel(ctx, pending.VerifyChannel, Outbound{
			Content: fmt.Sprintf("Vouch from <@%s> for %s awaiting review.", pending.UserID, pending.MatchedRole),
			Components: []Component{
				{ID: componentVouchApprove + ":" + pending.ID, Label: "Approve"},
				{ID: componentVouchDeny + ":" + pending.ID, Label: "Deny"},
			},
		})
		if err != nil {
			d.logger.Error("verify post failed", "guild", pending.GuildID, "vouch", pending.ID, "err", err)
		}
		return err
	}
}

// HandleInteraction resolves a component press.
func (d *Dispatcher) HandleInteraction(ctx context.Context, it Interaction) error {
	action, rest, ok := splitComponent(it.ComponentID)
	if !ok {
		return nil
	}
	switch action {
	case componentVouchApprove:
		return d.decideVouch(ctx, it, rest, true)
	case componentVouchDeny:
		return d.decideVouch(ctx, it, rest, false)
	case componentRedeem:
		sessionID, rewardName, ok := strings.Cut(rest, ":")
		if !ok {
			return nil
		}
		return d.redeem(ctx, it, sessionID, rewardName)
	default:
		return nil
	}
}

func (d *Dispatcher) decideVouch(ctx context.Context, it Interaction, vouchID string, approve bool) error {
	if !it.IsAdmin {
		return d.sender.SendChannel(ctx, it.ChannelID, Outbound{
			Content:     fmt.Sprintf("<@%s> only staff can decide vouches.", it.UserID),
			DeleteAfter: noticeTTL,
		})
	}
	decision, err := d.node.DecideVouch(vouchID, it.UserID, approve)
	if err != nil {
		if errors.Is(err, vouch.ErrVouchNotFound) {
			return d.sender.SendChannel(ctx, it.ChannelID, Outbound{
				Content:     "That vouch was already decided.",
				DeleteAfter: noticeTTL,
			})
		}
		d.logger.Error("vouch decision failed", "vouch", vouchID, "err", err)
		return err
	}

	if decision.Approved {
		if err := d.sender.SendChannel(ctx, it.ChannelID, Outbound{
			Content: fmt.Sprintf("Vouch approved. <@%s> now has %d point(s).", decision.Vouch.UserID, decision.NewBalance),
		}); err != nil {
			return err
		}
		// DM failures are expected when the user closed DMs.
		_ = d.sender.SendDM(ctx, decision.Vouch.UserID, Outbound{
			Content: fmt.Sprintf("Your vouch was approved! Balance: %d", decision.NewBalance),
		})
		return nil
	}
	if err := d.sender.SendChannel(ctx, it.ChannelID, Outbound{
		Content: fmt.Sprintf("Vouch from <@%s> was rejected.", decision.Vouch.UserID),
	}); err != nil {
		return err
	}
	_ = d.sender.SendDM(ctx, decision.Vouch.UserID, Outbound{
		Content: "Your vouch was not approved this time.",
	})
	return nil
}

func (d *Dispatcher) redeem(ctx context.Context, it Interaction, sessionID, rewardName string) error {
	red, err := d.node.SessionRedeem(sessionID, it.UserID, rewardName)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotOwner):
			return d.sender.SendChannel(ctx, it.ChannelID, Outbound{
				Content:     fmt.Sprintf("<@%s> that shop belongs to someone else.", it.UserID),
				DeleteAfter: noticeTTL,
			})
		case errors.Is(err, session.ErrSessionExpired), errors.Is(err, session.ErrSessionNotFound):
			return d.sender.SendChannel(ctx, it.ChannelID, Outbound{
				Content:     "This shop has expired. Open a new one.",
				DeleteAfter: noticeTTL,
			})
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return d.sender.SendChannel(ctx, it.ChannelID, Outbound{
				Content:     fmt.Sprintf("<@%s> you cannot afford %s.", it.UserID, rewardName),
				DeleteAfter: noticeTTL,
			})
		case errors.Is(err, ledger.ErrRewardNotFound):
			return d.sender.SendChannel(ctx, it.ChannelID, Outbound{
				Content:     fmt.Sprintf("%s is no longer available.", rewardName),
				DeleteAfter: noticeTTL,
			})
		}
		d.logger.Error("session redemption failed", "session", sessionID, "err", err)
		return err
	}

	if err := d.sender.SendChannel(ctx, it.ChannelID, Outbound{
		Content: fmt.Sprintf("<@%s> redeemed %s for %d point(s). Balance: %d", it.UserID, red.Reward.Name, red.Reward.Cost, red.NewBalance),
	}); err != nil {
		return err
	}
	_ = d.sender.SendDM(ctx, it.UserID, Outbound{
		Content: fmt.Sprintf("You redeemed %s. Remaining balance: %d", red.Reward.Name, red.NewBalance),
	})
	if staff, ok := d.sender.AdminChannel(it.GuildID); ok {
		if err := d.sender.SendChannel(ctx, staff, Outbound{
			Content: fmt.Sprintf("<@%s> redeemed %s (%d points).", it.UserID, red.Reward.Name, red.Reward.Cost),
		}); err != nil {
			d.logger.Warn("staff notice failed", "guild", it.GuildID, "err", err)
		}
	}
	return nil
}

// ShopView renders an open session as an outbound message with one redeem
// button per catalog entry. Unaffordable entries are listed without a button.
func ShopView(view *session.View) Outbound {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Shop for <@%s> — balance %d\n", view.UserID, view.Balance)
	components := make([]Component, 0, len(view.Items))
	for _, item := range view.Items {
		fmt.Fprintf(&sb, "• %s — %d point(s)\n", item.Name, item.Cost)
		if item.Affordable {
			components = append(components, Component{
				ID:    componentRedeem + ":" + view.ID + ":" + item.Name,
				Label: item.Name,
			})
		}
	}
	return Outbound{Content: sb.String(), Components: components}
}

func buildCandidate(msg Message) (vouch.Candidate, string) {
	filenames := make([]string, 0, len(msg.Attachments))
	evidenceURL := ""
	for _, att := range msg.Attachments {
		filenames = append(filenames, att.Filename)
		if evidenceURL == "" && vouch.HasImageEvidence([]string{att.Filename}) {
			evidenceURL = att.URL
		}
	}
	var userRoles []string
	for _, user := range msg.MentionedUsers {
		userRoles = append(userRoles, user.Roles...)
	}
	return vouch.Candidate{
		EvidencePresent:    vouch.HasImageEvidence(filenames),
		MentionedRoles:     msg.MentionedRoles,
		MentionedUserRoles: userRoles,
		Text:               msg.Text,
	}, evidenceURL
}

func splitComponent(id string) (action, rest string, ok bool) {
	idx := strings.LastIndex(id, ":")
	if idx <= 0 {
		return "", "", false
	}
	switch {
	case strings.HasPrefix(id, componentVouchApprove+":"):
		return componentVouchApprove, strings.TrimPrefix(id, componentVouchApprove+":"), true
	case strings.HasPrefix(id, componentVouchDeny+":"):
		return componentVouchDeny, strings.TrimPrefix(id, componentVouchDeny+":"), true
	case strings.HasPrefix(id, componentRedeem+":"):
		return componentRedeem, strings.TrimPrefix(id, componentRedeem+":"), true
	}
	return "", "", false
}
