package discord

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

// RetryDelay before re-attempting the gateway connection.
const RetryDelay = 60 * time.Second

// Emojis are the reaction choices, one per slot in selection order.
// Green, red, pink, cherry, purple, orange.
var Emojis = []string{"🟢", "🔴", "🌸", "🍒", "🟣", "🟠"}

// Observer posts a menu message in the configured channel and vends on
// reactions to it. A conference-floor novelty rail: no payment at all,
// reactions gate on channel membership instead.
type Observer struct {
	token     string
	channelID string
	sink      bepsi.PaymentSink

	emojiToPin map[string]int
	selfID     string
	messageID  string

	retryDelay time.Duration
	dial       func() (io.Closer, error)
}

func NewObserver(conf bepsi.Config, sink bepsi.PaymentSink) *Observer {
	pins := conf.Pins()
	emojiToPin := make(map[string]int)
	for i, emoji := range Emojis {
		if i >= len(pins) {
			break
		}
		emojiToPin[emoji] = pins[i]
	}
	o := &Observer{
		token:      conf.Discord.Token,
		channelID:  conf.Discord.ChannelID,
		sink:       sink,
		emojiToPin: emojiToPin,
		retryDelay: RetryDelay,
	}
	o.dial = o.connect
	return o
}

// Implements conductor.Service. Gateway failures never propagate: a
// rail that can't reach Discord logs it and retries on a fixed delay
// while the rest of the machine keeps vending.
func (o *Observer) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		started <- true
		for {
			session, err := o.dial()
			if err != nil {
				log.Printf("Discord: %v, retrying in %v", err, o.retryDelay)
				select {
				case <-stop:
					stopped <- true
					return
				case <-time.After(o.retryDelay):
					continue
				}
			}
			<-stop
			session.Close()
			stopped <- true
			return
		}
	}()
	return nil
}

// connect opens the gateway, posts the menu message and seeds the
// reaction choices. Any failure tears the session down so Run's retry
// loop can try again.
func (o *Observer) connect() (io.Closer, error) {
	session, err := discordgo.New("Bot " + o.token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions

	session.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		o.handleReaction(reaction{
			UserID:    r.UserID,
			ChannelID: r.ChannelID,
			MessageID: r.MessageID,
			Emoji:     r.Emoji.Name,
		}, func() error {
			return s.MessageReactionRemove(r.ChannelID, r.MessageID, r.Emoji.APIName(), r.UserID)
		})
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord gateway: %w", err)
	}
	o.selfID = session.State.User.ID
	log.Printf("Discord: logged in as %s", session.State.User.Username)

	msg, err := session.ChannelMessageSend(o.channelID, "Bitpepsi for all!")
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("posting menu message: %w", err)
	}
	o.messageID = msg.ID
	for _, emoji := range Emojis {
		if err := session.MessageReactionAdd(o.channelID, msg.ID, emoji); err != nil {
			log.Printf("Discord: seeding reaction %s: %v", emoji, err)
		}
	}
	return session, nil
}

type reaction struct {
	UserID    string
	ChannelID string
	MessageID string
	Emoji     string
}

// handleReaction applies the vend rules to one reaction event. The
// reaction is always removed first so the menu stays at one reaction
// per emoji, even for reactions that don't vend.
func (o *Observer) handleReaction(r reaction, remove func() error) {
	if r.UserID == o.selfID {
		return
	}
	if err := remove(); err != nil {
		log.Printf("Discord: removing reaction: %v", err)
	}
	if r.MessageID != o.messageID || r.ChannelID != o.channelID {
		return
	}
	pin, ok := o.emojiToPin[r.Emoji]
	if !ok {
		return
	}
	o.sink.Paid(bepsi.PaymentCandidate{
		Pin:      pin,
		Currency: "discord",
		Method:   "discord",
		At:       time.Now(),
	})
}
