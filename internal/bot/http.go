package bot

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"inspection/internal/catalog"
	"inspection/internal/models"
	"inspection/internal/query"
	"inspection/internal/report"
	"inspection/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HTTPServer serves the read-only API used by the Mini App and dashboards
type HTTPServer struct {
	bot         *Bot
	webhookMode bool // If false (polling mode), skip authentication for easier local dev
	now         func() time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(bot *Bot, webhookMode bool) *HTTPServer {
	return &HTTPServer{
		bot:         bot,
		webhookMode: webhookMode,
		now:         time.Now,
	}
}

// Routes returns the API router, meant to be mounted under /api
func (hs *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(hs.authMiddleware)

	r.Get("/catalog", hs.handleCatalog)
	r.Get("/records", hs.handleRecords)
	r.Get("/report", hs.handleReport)
	return r
}

// validateTelegramInitData validates the Telegram Mini App initData
func (hs *HTTPServer) validateTelegramInitData(initData string) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("missing initData")
	}

	// Parse the initData
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	// Extract hash
	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("missing hash in initData")
	}

	// Remove hash from values
	values.Del("hash")

	// Create data-check-string
	var keys []string
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dataCheckString strings.Builder
	for i, k := range keys {
		if i > 0 {
			dataCheckString.WriteByte('\n')
		}
		dataCheckString.WriteString(k)
		dataCheckString.WriteByte('=')
		dataCheckString.WriteString(values.Get(k))
	}

	if !hmac.Equal([]byte(signInitData(hs.bot.token, dataCheckString.String())), []byte(hash)) {
		return 0, fmt.Errorf("invalid hash")
	}

	// Check auth_date (data should be recent, within 24 hours)
	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("missing or invalid auth_date")
	}
	if hs.now().Unix()-authDate > 86400 {
		return 0, fmt.Errorf("initData is too old")
	}

	// Extract user ID
	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("missing user data")
	}

	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}

	// Check if user is allowed
	if !hs.bot.isAllowed(userData.ID) {
		return 0, fmt.Errorf("user not allowed")
	}

	return userData.ID, nil
}

// signInitData computes the hex HMAC Telegram attaches to Mini App initData
func signInitData(token, dataCheckString string) string {
	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(token))
	secret := secretKey.Sum(nil)

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(dataCheckString))
	return hex.EncodeToString(h.Sum(nil))
}

// authMiddleware validates Telegram Mini App authentication
// In polling mode (webhookMode=false), authentication is skipped for easier local development
func (hs *HTTPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication in polling mode (local development) and for CORS preflight
		if !hs.webhookMode || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// Extract authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "tma ") {
			hs.bot.logger.Warn("Missing or invalid authorization header")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		initData := strings.TrimPrefix(authHeader, "tma ")

		// Validate initData
		userID, err := hs.validateTelegramInitData(initData)
		if err != nil {
			hs.bot.logger.Warn("Failed to validate initData",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		hs.bot.logger.Debug("Authenticated request",
			zap.Int64("user_id", userID),
			zap.String("path", r.URL.Path),
		)

		next.ServeHTTP(w, r)
	})
}

type corridorResponse struct {
	Name  string   `json:"name"`
	Rooms []string `json:"rooms"`
}

// handleCatalog returns the corridors and their rooms
func (hs *HTTPServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var corridors []corridorResponse
	for _, name := range hs.bot.catalog.Corridors() {
		rooms, _ := hs.bot.catalog.RoomsFor(name)
		corridors = append(corridors, corridorResponse{Name: name, Rooms: rooms})
	}
	writeJSON(w, http.StatusOK, corridors)
}

type recordsResponse struct {
	Corridor  string         `json:"corridor"`
	Room      string         `json:"room"`
	Date      string         `json:"date"`
	Arrival   *models.Record `json:"arrival"`
	Departure *models.Record `json:"departure"`
}

// handleRecords returns the arrival and departure records of a room on a date
func (hs *HTTPServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := hs.bot.resolver.Resolve(r.Context(), q.Get("corridor"), q.Get("room"), q.Get("date"))
	switch {
	case errors.Is(err, query.ErrMalformedQuery):
		writeError(w, http.StatusBadRequest, "corridor, room and date (YYYY-MM-DD) are required")
		return
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "Unknown corridor or room")
		return
	case err != nil:
		hs.bot.logger.Error("Failed to resolve records", zap.Error(err))
		writeError(w, statusFor(err), "Failed to fetch records")
		return
	}

	writeJSON(w, http.StatusOK, recordsResponse{
		Corridor:  result.Query.Corridor,
		Room:      result.Query.Room,
		Date:      result.Query.Date,
		Arrival:   result.Slots.Arrival,
		Departure: result.Slots.Departure,
	})
}

// handleReport streams the spreadsheet of a date; today when no date is given
func (hs *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = hs.now().In(hs.bot.loc).Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	var buf bytes.Buffer
	if err := report.Write(r.Context(), &buf, hs.bot.db, hs.bot.catalog, date, hs.bot.loc); err != nil {
		hs.bot.logger.Error("Failed to build report", zap.Error(err), zap.String("date", date))
		writeError(w, statusFor(err), "Failed to build report")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename(date)))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func statusFor(err error) int {
	if errors.Is(err, storage.ErrUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
