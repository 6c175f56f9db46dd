// Package mock provides test doubles for Discord interaction testing.
package mock

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ChannelMessage is one recorded ChannelMessageSend call.
type ChannelMessage struct {
	ChannelID string
	Content   string
}

// Session records interaction responses and channel messages. It is safe
// for concurrent use.
type Session struct {
	mu sync.Mutex

	// Err is returned by every method when non-nil.
	Err error

	responses []*discordgo.InteractionResponse
	followUps []*discordgo.WebhookParams
	messages  []ChannelMessage
}

// InteractionRespond records the response and returns Err.
func (m *Session) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m.Err
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *Session) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followUps = append(m.followUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// ChannelMessageSend records the message and returns a stub message.
func (m *Session) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, ChannelMessage{ChannelID: channelID, Content: content})
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-message", ChannelID: channelID, Content: content}, nil
}

// Responses returns a copy of the recorded responses.
func (m *Session) Responses() []*discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.InteractionResponse(nil), m.responses...)
}

// FollowUps returns a copy of the recorded follow-ups.
func (m *Session) FollowUps() []*discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*discordgo.WebhookParams(nil), m.followUps...)
}

// Messages returns a copy of the recorded channel messages.
func (m *Session) Messages() []ChannelMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChannelMessage(nil), m.messages...)
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Session) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil
	}
	return m.responses[len(m.responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *Session) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.followUps) == 0 {
		return nil
	}
	return m.followUps[len(m.followUps)-1]
}

// Reset clears all recorded calls and Err.
func (m *Session) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = nil
	m.followUps = nil
	m.messages = nil
	m.Err = nil
}
