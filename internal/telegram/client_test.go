package telegram

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/Belogorec/marsu-bot2/internal/bot"
	"github.com/Belogorec/marsu-bot2/internal/services/membership"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type ClientSuite struct {
	suite.Suite
	api    *fakeBotAPI
	client *Client
	ctx    context.Context
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.api = newFakeBotAPI(s.T())
	client, err := Connect(Config{Token: testToken, APIEndpoint: s.api.endpoint(), PollTimeout: 1})
	s.Require().NoError(err)
	s.client = client
	s.ctx = context.Background()
}

func (s *ClientSuite) TestConnectReadsBotUsername() {
	s.Equal("marsu_bot", s.client.Username())
	s.Len(s.api.calls("getMe"), 1)
}

func (s *ClientSuite) TestConnectFailsOnBadToken() {
	_, err := Connect(Config{Token: "wrong", APIEndpoint: s.api.endpoint()})
	s.Error(err)
}

func (s *ClientSuite) TestFetchChatMemberStatuses() {
	cases := map[string]membership.Status{
		"creator":           membership.StatusMember,
		"administrator":     membership.StatusMember,
		"member":            membership.StatusMember,
		"restricted_member": membership.StatusMember,
		"restricted":        membership.StatusNotMember,
		"left":              membership.StatusNotMember,
		"kicked":            membership.StatusNotMember,
		"mystery":           membership.StatusUnknown,
	}
	userID := int64(100)
	for status, want := range cases {
		userID++
		s.api.setStatus(userID, status)

		got, err := s.client.FetchChatMember(s.ctx, "@airdrop_news", userID)
		s.Require().NoError(err, status)
		s.Equal(want, got, status)
	}
}

func (s *ClientSuite) TestFetchChatMemberAddressesChannel() {
	_, err := s.client.FetchChatMember(s.ctx, "airdrop_news", 42)
	s.Require().NoError(err)
	_, err = s.client.FetchChatMember(s.ctx, "-1001234567890", 42)
	s.Require().NoError(err)

	calls := s.api.calls("getChatMember")
	s.Require().Len(calls, 2)
	s.Equal("@airdrop_news", calls[0].Form.Get("chat_id"))
	s.Equal("42", calls[0].Form.Get("user_id"))
	s.Equal("-1001234567890", calls[1].Form.Get("chat_id"))
}

func (s *ClientSuite) TestFetchChatMemberUserNotFound() {
	s.api.fail("getChatMember", "Bad Request: user not found")

	status, err := s.client.FetchChatMember(s.ctx, "@airdrop_news", 42)
	s.NoError(err)
	s.Equal(membership.StatusNotMember, status)
}

func (s *ClientSuite) TestFetchChatMemberError() {
	s.api.fail("getChatMember", "Bad Request: chat not found")

	status, err := s.client.FetchChatMember(s.ctx, "@airdrop_news", 42)
	s.Error(err)
	s.Equal(membership.StatusUnknown, status)
}

func (s *ClientSuite) TestSendWithButtons() {
	err := s.client.Send(s.ctx, 77, &bot.Reply{
		Text: "<b>hi</b>",
		Buttons: [][]bot.Button{
			{{Label: "Status", Data: bot.ButtonStatus}, {Label: "Channel", URL: "https://t.me/airdrop_news"}},
		},
	})
	s.Require().NoError(err)

	calls := s.api.calls("sendMessage")
	s.Require().Len(calls, 1)
	form := calls[0].Form
	s.Equal("77", form.Get("chat_id"))
	s.Equal("<b>hi</b>", form.Get("text"))
	s.Equal("HTML", form.Get("parse_mode"))

	var markup struct {
		InlineKeyboard [][]struct {
			Text         string `json:"text"`
			CallbackData string `json:"callback_data"`
			URL          string `json:"url"`
		} `json:"inline_keyboard"`
	}
	s.Require().NoError(json.Unmarshal([]byte(form.Get("reply_markup")), &markup))
	s.Require().Len(markup.InlineKeyboard, 1)
	s.Require().Len(markup.InlineKeyboard[0], 2)
	s.Equal(bot.ButtonStatus, markup.InlineKeyboard[0][0].CallbackData)
	s.Equal("https://t.me/airdrop_news", markup.InlineKeyboard[0][1].URL)
}

func (s *ClientSuite) TestSendWithoutButtons() {
	s.Require().NoError(s.client.Send(s.ctx, 77, &bot.Reply{Text: "plain"}))

	calls := s.api.calls("sendMessage")
	s.Require().Len(calls, 1)
	s.Empty(calls[0].Form.Get("reply_markup"))
}

func (s *ClientSuite) TestSendError() {
	s.api.fail("sendMessage", "Forbidden: bot was blocked by the user")
	s.Error(s.client.Send(s.ctx, 77, &bot.Reply{Text: "plain"}))
}

func (s *ClientSuite) TestAnswerCallback() {
	s.Require().NoError(s.client.AnswerCallback(s.ctx, "cb-1"))

	calls := s.api.calls("answerCallbackQuery")
	s.Require().Len(calls, 1)
	s.Equal("cb-1", calls[0].Form.Get("callback_query_id"))
}

func (s *ClientSuite) TestUpdatesPassesOffset() {
	updates, err := s.client.Updates(s.ctx, 12)
	s.Require().NoError(err)
	s.Empty(updates)

	calls := s.api.calls("getUpdates")
	s.Require().Len(calls, 1)
	s.Equal("12", calls[0].Form.Get("offset"))
}

func (s *ClientSuite) TestWebhookRegistration() {
	s.Require().NoError(s.client.SetWebhook(s.ctx, "https://example.com/telegram/webhook/secret"))
	s.Require().NoError(s.client.DeleteWebhook(s.ctx))

	calls := s.api.calls("setWebhook")
	s.Require().Len(calls, 1)
	s.Equal("https://example.com/telegram/webhook/secret", calls[0].Form.Get("url"))
	s.Len(s.api.calls("deleteWebhook"), 1)
}

func (s *ClientSuite) TestDefaultPollFitsShutdownGrace() {
	cfg := DefaultConfig()
	s.Equal(DefaultPollTimeout, cfg.PollTimeout)
	s.Less(cfg.PollTimeout, 10)
}
