package platform

import (
	"context"
	"strings"
	"testing"

	"vouchbank/core"
	"vouchbank/storage"
)

type sent struct {
	target string
	out    Outbound
	dm     bool
}

type fakeSender struct {
	messages  []sent
	admin     map[string]string
	dmFailure bool
}

func (f *fakeSender) SendChannel(_ context.Context, channelID string, out Outbound) error {
	f.messages = append(f.messages, sent{target: channelID, out: out})
	return nil
}

func (f *fakeSender) SendDM(_ context.Context, userID string, out Outbound) error {
	if f.dmFailure {
		return context.DeadlineExceeded
	}
	f.messages = append(f.messages, sent{target: userID, out: out, dm: true})
	return nil
}

func (f *fakeSender) AdminChannel(guildID string) (string, bool) {
	ch, ok := f.admin[guildID]
	return ch, ok
}

func (f *fakeSender) lastChannel() sent {
	for i := len(f.messages) - 1; i >= 0; i-- {
		if !f.messages[i].dm {
			return f.messages[i]
		}
	}
	return sent{}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *core.Node, *fakeSender) {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.NodeConfig{})
	if err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{admin: make(map[string]string)}
	return NewDispatcher(node, sender, nil), node, sender
}

func vouchMessage(text string) Message {
	return Message{
		GuildID:     "g1",
		ChannelID:   "c1",
		ChannelName: "vouch-here",
		MessageID:   "m1",
		AuthorID:    "u1",
		Text:        text,
		Attachments: []Attachment{{Filename: "proof.png", URL: "https://cdn/proof.png"}},
	}
}

func TestHandleMessageIgnoresBotsAndOtherChannels(t *testing.T) {
	d, node, sender := newTestDispatcher(t)
	ctx := context.Background()

	bot := vouchMessage("@chef")
	bot.AuthorIsBot = true
	if err := d.HandleMessage(ctx, bot); err != nil {
		t.Fatal(err)
	}

	offTopic := vouchMessage("@chef")
	offTopic.ChannelName = "general"
	if err := d.HandleMessage(ctx, offTopic); err != nil {
		t.Fatal(err)
	}

	if len(sender.messages) != 0 {
		t.Fatalf("messages = %d", len(sender.messages))
	}
	if node.Balance("g1", "u1") != 0 {
		t.Fatal("balance mutated")
	}
}

func TestHandleMessageAutoAward(t *testing.T) {
	d, node, sender := newTestDispatcher(t)

	if err := d.HandleMessage(context.Background(), vouchMessage("thanks @chef")); err != nil {
		t.Fatal(err)
	}
	if node.Balance("g1", "u1") != 1 {
		t.Fatalf("balance = %d", node.Balance("g1", "u1"))
	}
	last := sender.lastChannel()
	if last.target != "c1" || !strings.Contains(last.out.Content, "earned a point") {
		t.Fatalf("last = %+v", last)
	}
}

func TestHandleMessageCooldownNotice(t *testing.T) {
	d, _, sender := newTestDispatcher(t)
	ctx := context.Background()

	if err := d.HandleMessage(ctx, vouchMessage("thanks @chef")); err != nil {
		t.Fatal(err)
	}
	if err := d.HandleMessage(ctx, vouchMessage("thanks again @chef")); err != nil {
		t.Fatal(err)
	}

	last := sender.lastChannel()
	if !strings.Contains(last.out.Content, "please wait") || last.out.DeleteAfter == 0 {
		t.Fatalf("last = %+v", last)
	}
}

func TestHandleMessageQueuesWithRouteAndDecide(t *testing.T) {
	d, node, sender := newTestDispatcher(t)
	ctx := context.Background()
	if err := node.SetVerifyChannel("g1", "verify"); err != nil {
		t.Fatal(err)
	}

	if err := d.HandleMessage(ctx, vouchMessage("thanks @chef")); err != nil {
		t.Fatal(err)
	}
	post := sender.lastChannel()
	if post.target != "verify" || len(post.out.Components) != 2 {
		t.Fatalf("post = %+v", post)
	}
	approveID := post.out.Components[0].ID

	// Non-admin press is refused.
	if err := d.HandleInteraction(ctx, Interaction{
		GuildID: "g1", UserID: "rando", ChannelID: "verify", ComponentID: approveID,
	}); err != nil {
		t.Fatal(err)
	}
	if node.Balance("g1", "u1") != 0 {
		t.Fatal("non-admin decision awarded")
	}

	if err := d.HandleInteraction(ctx, Interaction{
		GuildID: "g1", UserID: "admin", ChannelID: "verify", ComponentID: approveID, IsAdmin: true,
	}); err != nil {
		t.Fatal(err)
	}
	if node.Balance("g1", "u1") != 1 {
		t.Fatalf("balance = %d", node.Balance("g1", "u1"))
	}

	// Double press reports the vouch as already decided.
	if err := d.HandleInteraction(ctx, Interaction{
		GuildID: "g1", UserID: "admin", ChannelID: "verify", ComponentID: approveID, IsAdmin: true,
	}); err != nil {
		t.Fatal(err)
	}
	last := sender.lastChannel()
	if !strings.Contains(last.out.Content, "already decided") {
		t.Fatalf("last = %+v", last)
	}
}

func TestRedeemInteractionFanOut(t *testing.T) {
	d, node, sender := newTestDispatcher(t)
	ctx := context.Background()
	sender.admin["g1"] = "staff"

	if _, err := node.Adjust("g1", "u1", 5, "admin"); err != nil {
		t.Fatal(err)
	}
	if err := node.UpsertReward("g1", "Sticker", 3); err != nil {
		t.Fatal(err)
	}
	view, err := node.OpenSession("g1", "u1")
	if err != nil {
		t.Fatal(err)
	}

	shop := ShopView(view)
	if len(shop.Components) != 1 {
		t.Fatalf("components = %+v", shop.Components)
	}

	if err := d.HandleInteraction(ctx, Interaction{
		GuildID: "g1", UserID: "u1", ChannelID: "shop-chan", ComponentID: shop.Components[0].ID,
	}); err != nil {
		t.Fatal(err)
	}
	if node.Balance("g1", "u1") != 2 {
		t.Fatalf("balance = %d", node.Balance("g1", "u1"))
	}

	var channel, dm, staff bool
	for _, m := range sender.messages {
		switch {
		case m.dm && m.target == "u1":
			dm = true
		case m.target == "shop-chan":
			channel = true
		case m.target == "staff":
			staff = true
		}
	}
	if !channel || !dm || !staff {
		t.Fatalf("fan-out incomplete: channel=%v dm=%v staff=%v", channel, dm, staff)
	}
}

func TestRedeemInteractionOwnerOnly(t *testing.T) {
	d, node, sender := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := node.Adjust("g1", "u1", 5, "admin"); err != nil {
		t.Fatal(err)
	}
	if err := node.UpsertReward("g1", "Sticker", 3); err != nil {
		t.Fatal(err)
	}
	view, err := node.OpenSession("g1", "u1")
	if err != nil {
		t.Fatal(err)
	}

	if err := d.HandleInteraction(ctx, Interaction{
		GuildID: "g1", UserID: "intruder", ChannelID: "shop-chan",
		ComponentID: "redeem:" + view.ID + ":Sticker",
	}); err != nil {
		t.Fatal(err)
	}
	if node.Balance("g1", "u1") != 5 {
		t.Fatal("intruder spent the owner's points")
	}
	last := sender.lastChannel()
	if !strings.Contains(last.out.Content, "belongs to someone else") {
		t.Fatalf("last = %+v", last)
	}
}

func TestRedeemDMFailureIgnored(t *testing.T) {
	d, node, sender := newTestDispatcher(t)
	ctx := context.Background()
	sender.dmFailure = true

	if _, err := node.Adjust("g1", "u1", 5, "admin"); err != nil {
		t.Fatal(err)
	}
	if err := node.UpsertReward("g1", "Sticker", 3); err != nil {
		t.Fatal(err)
	}
	view, err := node.OpenSession("g1", "u1")
	if err != nil {
		t.Fatal(err)
	}

	if err := d.HandleInteraction(ctx, Interaction{
		GuildID: "g1", UserID: "u1", ChannelID: "shop-chan",
		ComponentID: "redeem:" + view.ID + ":Sticker",
	}); err != nil {
		t.Fatal(err)
	}
	if node.Balance("g1", "u1") != 2 {
		t.Fatalf("balance = %d", node.Balance("g1", "u1"))
	}
}
