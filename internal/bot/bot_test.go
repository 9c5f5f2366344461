package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inspection/internal/catalog"
	"inspection/internal/models"
	"inspection/internal/query"
	"inspection/internal/registration"
	"inspection/internal/session"
	"inspection/internal/storage/stubs"
)

const (
	testUser  = int64(123)
	testChat  = int64(456)
	otherUser = int64(999)
)

var testLoc = time.FixedZone("BRT", -3*60*60)

// fakeAPI records everything the bot sends instead of calling Telegram
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 10)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	close(f.updates)
}

func (f *fakeAPI) GetWebhookInfo() (tgbotapi.WebhookInfo, error) {
	return tgbotapi.WebhookInfo{URL: "https://bot.example.com/telegram-webhook"}, nil
}

func (f *fakeAPI) last() tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) all() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

func textOf(c tgbotapi.Chattable) string {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		return m.Text
	case tgbotapi.EditMessageTextConfig:
		return m.Text
	case tgbotapi.PhotoConfig:
		return m.Caption
	case tgbotapi.DocumentConfig:
		return m.Caption
	}
	return ""
}

func keyboardOf(t *testing.T, c tgbotapi.Chattable) tgbotapi.InlineKeyboardMarkup {
	t.Helper()
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		require.True(t, ok, "message has no inline keyboard")
		return kb
	case tgbotapi.EditMessageTextConfig:
		require.NotNil(t, m.ReplyMarkup, "edit has no inline keyboard")
		return *m.ReplyMarkup
	}
	t.Fatalf("unexpected chattable %T", c)
	return tgbotapi.InlineKeyboardMarkup{}
}

func setupTestBot(t *testing.T, allowed ...int64) (*Bot, *fakeAPI, *stubs.MockDB) {
	t.Helper()

	cat := catalog.Default()
	store := stubs.NewMockDB()
	logger := zap.NewNop()

	api := newFakeAPI()
	b := newBot(api, "test-token", Services{
		Machine:  registration.NewMachine(cat, session.NewTracker(cat, 0), store, testLoc, logger),
		Resolver: query.NewResolver(cat, store),
		Catalog:  cat,
		Store:    store,
	}, allowed, testLoc, logger)
	return b, api, store
}

func user(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: "Ana", LastName: "Souza", UserName: "ana"}
}

func commandUpdate(from int64, text string) tgbotapi.Update {
	name := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      user(from),
		Chat:      &tgbotapi.Chat{ID: testChat},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    user(from),
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: testChat}},
		Data:    data,
	}}
}

func photoUpdate(from int64, fileIDs ...string) tgbotapi.Update {
	var sizes []tgbotapi.PhotoSize
	for _, id := range fileIDs {
		sizes = append(sizes, tgbotapi.PhotoSize{FileID: id})
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 2,
		From:      user(from),
		Chat:      &tgbotapi.Chat{ID: testChat},
		Photo:     sizes,
	}}
}

func TestBot_FullRegistration(t *testing.T) {
	b, api, store := setupTestBot(t)

	b.HandleWebhookUpdate(commandUpdate(testUser, "/registrar"))
	msg := api.last()
	assert.Contains(t, textOf(msg), "Escolha o Corredor")
	kb := keyboardOf(t, msg)
	require.Len(t, kb.InlineKeyboard, len(catalog.Default().Corridors())+1, "one row per corridor plus cancel")
	assert.Equal(t, "corridor:Corredor A Térreo", *kb.InlineKeyboard[0][0].CallbackData)

	b.HandleWebhookUpdate(callbackUpdate(testUser, "corridor:Corredor A Térreo"))
	edit, ok := api.last().(tgbotapi.EditMessageTextConfig)
	require.True(t, ok, "button presses edit the message in place")
	assert.Equal(t, 77, edit.MessageID)
	assert.Contains(t, edit.Text, "📍 Corredor: Corredor A Térreo")
	assert.Contains(t, edit.Text, "Escolha a Sala")

	b.HandleWebhookUpdate(callbackUpdate(testUser, "room:Sala 07"))
	assert.Contains(t, textOf(api.last()), "Escolha o Tipo")
	kb = keyboardOf(t, api.last())
	assert.Equal(t, "Chegada", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "Saída", kb.InlineKeyboard[0][1].Text)

	b.HandleWebhookUpdate(callbackUpdate(testUser, "type:departure"))
	assert.Contains(t, textOf(api.last()), "Envie a foto")

	b.HandleWebhookUpdate(photoUpdate(testUser, "small", "large"))
	text := textOf(api.last())
	assert.Contains(t, text, "✅ Foto registrada!")
	assert.Contains(t, text, "Sala 07")
	assert.Contains(t, text, "Saída")

	today := time.Now().In(testLoc).Format(models.DateLayout)
	records, err := store.ListByDate(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "large", records[0].PhotoFileID)
	assert.Equal(t, models.Departure, records[0].Type)
	assert.Equal(t, models.Submitter{ID: testUser, Name: "Ana Souza"}, records[0].SubmittedBy)
}

func TestBot_UnauthorizedUser(t *testing.T) {
	b, api, _ := setupTestBot(t, testUser)

	b.HandleWebhookUpdate(commandUpdate(otherUser, "/registrar"))
	assert.Contains(t, textOf(api.last()), "não tem permissão")

	_, open := b.machine.Current(otherUser)
	assert.False(t, open)

	sent := len(api.all())
	b.HandleWebhookUpdate(callbackUpdate(otherUser, "corridor:Corredor A Térreo"))
	assert.Len(t, api.all(), sent, "callbacks from unknown users are ignored silently")
}

func TestBot_EmptyAllowListAllowsEveryone(t *testing.T) {
	b, api, _ := setupTestBot(t)

	b.HandleWebhookUpdate(commandUpdate(otherUser, "/registrar"))
	assert.Contains(t, textOf(api.last()), "Escolha o Corredor")
}

func TestBot_PhotoWithoutRegistration(t *testing.T) {
	b, api, _ := setupTestBot(t)

	b.HandleWebhookUpdate(photoUpdate(testUser, "stray"))
	assert.Contains(t, textOf(api.last()), "Use /registrar")
}

func TestBot_StrayInputRepromptsCurrentStep(t *testing.T) {
	b, api, _ := setupTestBot(t)

	b.HandleWebhookUpdate(commandUpdate(testUser, "/registrar"))
	b.HandleWebhookUpdate(callbackUpdate(testUser, "corridor:Corredor B Térreo"))

	// A photo before the room is chosen is rejected and the room question comes back
	b.HandleWebhookUpdate(photoUpdate(testUser, "early"))
	text := textOf(api.last())
	assert.Contains(t, text, "não é válida agora")
	assert.Contains(t, text, "Escolha a Sala")
	kb := keyboardOf(t, api.last())
	assert.Equal(t, "room:Sala 41", *kb.InlineKeyboard[0][0].CallbackData)

	// Free text repeats the question too
	b.HandleWebhookUpdate(tgbotapi.Update{Message: &tgbotapi.Message{
		From: user(testUser), Chat: &tgbotapi.Chat{ID: testChat}, Text: "sala 41",
	}})
	assert.Contains(t, textOf(api.last()), "Escolha a Sala")

	current, open := b.machine.Current(testUser)
	require.True(t, open)
	assert.Equal(t, session.StateCorridorChosen, current.State)
}

func TestBot_Cancel(t *testing.T) {
	b, api, _ := setupTestBot(t)

	b.HandleWebhookUpdate(commandUpdate(testUser, "/cancelar"))
	assert.Equal(t, "Nenhum registro em andamento.", textOf(api.last()))

	b.HandleWebhookUpdate(commandUpdate(testUser, "/registrar"))
	b.HandleWebhookUpdate(callbackUpdate(testUser, "corridor:Corredor A Térreo"))
	b.HandleWebhookUpdate(callbackUpdate(testUser, "cancel:"))
	assert.Contains(t, textOf(api.last()), "Registro cancelado")

	_, open := b.machine.Current(testUser)
	assert.False(t, open)
}

func TestBot_StorageFailureKeepsPhotoStep(t *testing.T) {
	b, api, store := setupTestBot(t)

	b.HandleWebhookUpdate(commandUpdate(testUser, "/registrar"))
	b.HandleWebhookUpdate(callbackUpdate(testUser, "corridor:Corredor A Térreo"))
	b.HandleWebhookUpdate(callbackUpdate(testUser, "room:Sala 01"))
	b.HandleWebhookUpdate(callbackUpdate(testUser, "type:arrival"))

	store.SetFailure(errors.New("disk full"))
	b.HandleWebhookUpdate(photoUpdate(testUser, "p1"))
	text := textOf(api.last())
	assert.Contains(t, text, "Falha ao salvar")
	assert.Contains(t, text, "Envie a foto")

	store.SetFailure(nil)
	b.HandleWebhookUpdate(photoUpdate(testUser, "p2"))
	assert.Contains(t, textOf(api.last()), "✅ Foto registrada!")
}

func TestBot_View(t *testing.T) {
	b, api, store := setupTestBot(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, models.Record{
		ID:          "rec-1",
		Corridor:    "Corredor A Térreo",
		Room:        "Sala 07",
		Type:        models.Arrival,
		Date:        "2025-07-02",
		CommittedAt: time.Date(2025, 7, 2, 11, 5, 0, 0, time.UTC),
		SubmittedBy: models.Submitter{ID: testUser, Name: "Ana"},
		PhotoFileID: "photo-arrival",
	}))

	b.HandleWebhookUpdate(commandUpdate(testUser, `/ver "Corredor A Térreo" 07 2025-07-02`))

	sent := api.all()
	require.Len(t, sent, 2)
	text := textOf(sent[0])
	assert.Contains(t, text, "📅 2025-07-02 - Corredor A Térreo - Sala 07")
	assert.Contains(t, text, "Registrada por Ana às 08:05")
	assert.Contains(t, text, "❌ Não registrada")

	photo, ok := sent[1].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, tgbotapi.FileID("photo-arrival"), photo.File)
	assert.Equal(t, "Chegada", photo.Caption)
}

func TestBot_ViewErrors(t *testing.T) {
	testCases := []struct {
		name string
		text string
		want string
	}{
		{name: "too few arguments", text: "/ver \"Corredor A Térreo\" 01", want: query.Usage},
		{name: "no arguments", text: "/ver", want: query.Usage},
		{name: "unknown corridor", text: "/ver Corredor Z 01 2025-07-02", want: "não encontrado"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, api, _ := setupTestBot(t)
			b.HandleWebhookUpdate(commandUpdate(testUser, tc.text))
			assert.Contains(t, textOf(api.last()), tc.want)
		})
	}
}

func TestBot_Report(t *testing.T) {
	b, api, _ := setupTestBot(t)

	b.HandleWebhookUpdate(commandUpdate(testUser, "/relatorio 2025-07-02"))
	doc, ok := api.last().(tgbotapi.DocumentConfig)
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "inspecoes_2025-07-02.xlsx", file.Name)
	assert.NotEmpty(t, file.Bytes)

	b.HandleWebhookUpdate(commandUpdate(testUser, "/relatorio ontem"))
	assert.Contains(t, textOf(api.last()), "/relatorio AAAA-MM-DD")
}

func TestBot_UnknownCommand(t *testing.T) {
	b, api, _ := setupTestBot(t)

	b.HandleWebhookUpdate(commandUpdate(testUser, "/foo"))
	assert.Contains(t, textOf(api.last()), "Comando desconhecido")

	b.HandleWebhookUpdate(commandUpdate(testUser, "/ajuda"))
	assert.Equal(t, helpText, textOf(api.last()))
}

func TestBot_PanicRecovery(t *testing.T) {
	b, api, _ := setupTestBot(t)
	b.resolver = nil // /ver dereferences the resolver

	assert.NotPanics(t, func() {
		b.HandleWebhookUpdate(commandUpdate(testUser, "/ver Corredor A Térreo 01 2025-07-02"))
	})
	assert.Contains(t, textOf(api.last()), "erro inesperado")
}

func TestBot_PollingStopsWhenUpdatesClose(t *testing.T) {
	b, api, _ := setupTestBot(t)

	api.updates <- commandUpdate(testUser, "/ajuda")
	b.Stop()

	require.NoError(t, b.Start())
	assert.Equal(t, helpText, textOf(api.last()))

	_, ok := api.requests[0].(tgbotapi.DeleteWebhookConfig)
	assert.True(t, ok, "polling removes any webhook first")
}

func TestBot_StartWebhook(t *testing.T) {
	b, api, _ := setupTestBot(t)

	require.NoError(t, b.StartWebhook("https://bot.example.com"))
	cfg, ok := api.requests[0].(tgbotapi.WebhookConfig)
	require.True(t, ok)
	assert.Equal(t, "https://bot.example.com/telegram-webhook", cfg.URL.String())
	assert.Equal(t, 1, cfg.MaxConnections, "Telegram must deliver updates in order")
}

func TestBot_QueueHandlesUpdatesInArrivalOrder(t *testing.T) {
	b, api, store := setupTestBot(t)

	b.Enqueue(commandUpdate(testUser, "/registrar"))
	b.Enqueue(callbackUpdate(testUser, "corridor:Corredor A Térreo"))
	b.Enqueue(callbackUpdate(testUser, "room:Sala 02"))
	b.Enqueue(callbackUpdate(testUser, "type:arrival"))
	b.Enqueue(photoUpdate(testUser, "first"))
	b.Enqueue(photoUpdate(testUser, "second"))

	go b.ServeQueue()
	b.StopQueue()

	// The first photo commits; the second arrives with no open registration
	assert.Contains(t, textOf(api.last()), "Use /registrar")

	today := time.Now().In(testLoc).Format(models.DateLayout)
	records, err := store.ListByDate(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "first", records[0].PhotoFileID)
}

func TestDecodeCallback(t *testing.T) {
	testCases := []struct {
		data    string
		want    registration.Event
		wantErr bool
	}{
		{data: "corridor:Corredor A 1º Piso", want: registration.Event{Kind: registration.EventCorridorPick, Corridor: "Corredor A 1º Piso"}},
		{data: "room:Sala 07", want: registration.Event{Kind: registration.EventRoomPick, Room: "Sala 07"}},
		{data: "type:arrival", want: registration.Event{Kind: registration.EventTypePick, Type: models.Arrival}},
		{data: "cancel:", want: registration.Event{Kind: registration.EventCancel}},
		{data: "type:lunch", wantErr: true},
		{data: "corredor_Corredor A Térreo", wantErr: true},
		{data: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.data, func(t *testing.T) {
			got, err := decodeCallback(tc.data)
			if tc.wantErr {
				assert.ErrorIs(t, err, errUnknownCallback)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPromptKeyboard_RoomRows(t *testing.T) {
	kb := promptKeyboard(registration.Prompt{
		Step:    registration.StepRoom,
		Options: []string{"Sala 1", "Sala 2", "Sala 3", "Sala 4"},
	})
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Len(t, kb.InlineKeyboard[0], 3)
	assert.Len(t, kb.InlineKeyboard[1], 1)
	assert.Equal(t, "cancel:", *kb.InlineKeyboard[2][0].CallbackData)

	assert.Nil(t, promptKeyboard(registration.Prompt{Step: registration.StepDone}))
}

func TestCallbackData_FitsTelegramLimit(t *testing.T) {
	longest := strings.Repeat("x", catalog.MaxNameBytes)
	for _, kind := range []string{callbackCorridor, callbackRoom, callbackType, callbackCancel} {
		assert.LessOrEqual(t, len(callbackData(kind, longest)), 64, kind)
	}
}
