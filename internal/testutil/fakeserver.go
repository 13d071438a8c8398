package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"todo/internal/service"
)

// FakeServer is an in-memory todo backend speaking the REST protocol.
// Passwords are bcrypt-hashed and tokens are HS256 JWTs, as a real backend would.
type FakeServer struct {
	*httptest.Server

	mu      sync.Mutex
	secret  []byte
	users   map[string][]byte               // email -> password hash
	tasks   map[string][]service.RemoteTask // email -> tasks in creation order
	images  map[string][]byte               // image id -> content
	calls   []string                        // "METHOD /path" in arrival order
	failure map[string]int                  // "METHOD /path-prefix" -> forced status

	// Now supplies createdAt timestamps.
	Now func() time.Time
}

type fakeClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewFakeServer starts a FakeServer. Close it with t.Cleanup(srv.Close).
func NewFakeServer() *FakeServer {
	s := &FakeServer{
		secret:  []byte(uuid.NewString()),
		users:   make(map[string][]byte),
		tasks:   make(map[string][]service.RemoteTask),
		images:  make(map[string][]byte),
		failure: make(map[string]int),
		Now:     time.Now,
	}

	r := mux.NewRouter()
	r.Use(s.record)
	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.requireAuth)
	authed.HandleFunc("/todos", s.handleList).Methods(http.MethodGet)
	authed.HandleFunc("/todos", s.handleCreate).Methods(http.MethodPost)
	authed.HandleFunc("/todos/{id}", s.handleUpdate).Methods(http.MethodPatch)
	authed.HandleFunc("/todos/{id}", s.handleDelete).Methods(http.MethodDelete)
	authed.HandleFunc("/images", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/images/{id}", s.handleImage).Methods(http.MethodGet)

	s.Server = httptest.NewServer(r)
	return s
}

// AddUser registers an account directly.
func (s *FakeServer) AddUser(email, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = hash
}

// AddTask seeds a task for a user and returns it.
func (s *FakeServer) AddTask(email, title string, completed bool) service.RemoteTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.newTask(email, title)
	t.Completed = completed
	s.tasks[email] = append(s.tasks[email], t)
	return t
}

// Tasks returns a copy of a user's tasks.
func (s *FakeServer) Tasks(email string) []service.RemoteTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]service.RemoteTask, len(s.tasks[email]))
	copy(out, s.tasks[email])
	return out
}

// Image returns uploaded content by URL.
func (s *FakeServer) Image(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := url[strings.LastIndex(url, "/")+1:]
	data, ok := s.images[id]
	return data, ok
}

// Calls returns the requests received so far as "METHOD /path".
func (s *FakeServer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Fail forces requests matching method and path prefix to answer status
// until cleared. Pass status 0 to clear.
func (s *FakeServer) Fail(method, pathPrefix string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + pathPrefix
	if status == 0 {
		delete(s.failure, key)
		return
	}
	s.failure[key] = status
}

// TokenFor issues a valid token for email without a login round trip.
func (s *FakeServer) TokenFor(email string) string {
	tok, err := s.sign(email)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *FakeServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		status := 0
		for key, code := range s.failure {
			method, prefix, _ := strings.Cut(key, " ")
			if method == r.Method && strings.HasPrefix(r.URL.Path, prefix) {
				status = code
				break
			}
		}
		s.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"message": fmt.Sprintf("forced failure %d", status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *FakeServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing token"})
			return
		}
		claims := &fakeClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		}
		r.Header.Set("X-Fake-User", claims.Email)
		next.ServeHTTP(w, r)
	})
}

func (s *FakeServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "email and password required"})
		return
	}

	s.mu.Lock()
	_, exists := s.users[body.Email]
	s.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "email already registered"})
		return
	}

	s.AddUser(body.Email, body.Password)
	s.writeAuth(w, body.Email)
}

func (s *FakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	s.mu.Lock()
	hash, ok := s.users[body.Email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, []byte(body.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
		return
	}
	s.writeAuth(w, body.Email)
}

func (s *FakeServer) writeAuth(w http.ResponseWriter, email string) {
	tok, err := s.sign(email)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"token": tok,
			"user":  map[string]string{"email": email},
		},
	})
}

func (s *FakeServer) sign(email string) (string, error) {
	claims := fakeClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(72 * time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *FakeServer) handleList(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-Fake-User")
	writeJSON(w, http.StatusOK, map[string]any{"data": s.Tasks(user)})
}

func (s *FakeServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-Fake-User")
	var body struct {
		Title    string            `json:"title"`
		Location *service.Location `json:"location"`
		PhotoURI string            `json:"photoUri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Title) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "title required"})
		return
	}

	s.mu.Lock()
	t := s.newTask(user, strings.TrimSpace(body.Title))
	t.Location = body.Location
	t.PhotoURI = body.PhotoURI
	s.tasks[user] = append(s.tasks[user], t)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"data": t})
}

func (s *FakeServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-Fake-User")
	id := mux.Vars(r)["id"]
	var patch service.TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks[user] {
		if t.ID != id {
			continue
		}
		if patch.Title != nil {
			s.tasks[user][i].Title = *patch.Title
		}
		if patch.Completed != nil {
			s.tasks[user][i].Completed = *patch.Completed
		}
		// Bare record on purpose: clients must accept both shapes
		writeJSON(w, http.StatusOK, s.tasks[user][i])
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "task not found"})
}

func (s *FakeServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-Fake-User")
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tasks[user] {
		if t.ID == id {
			s.tasks[user] = append(s.tasks[user][:i], s.tasks[user][i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "task not found"})
}

func (s *FakeServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "image required"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.images[id] = data
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]string{"url": s.URL + "/images/" + id},
	})
}

func (s *FakeServer) handleImage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	data, ok := s.images[mux.Vars(r)["id"]]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(data)
}

// newTask must be called with s.mu held.
func (s *FakeServer) newTask(user, title string) service.RemoteTask {
	now := s.Now().UTC()
	return service.RemoteTask{
		ID:        uuid.NewString(),
		Title:     title,
		UserID:    user,
		CreatedAt: &now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
