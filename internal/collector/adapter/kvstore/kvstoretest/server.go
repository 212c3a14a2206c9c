// Package kvstoretest provides an in-process key-value store speaking the
// collections REST protocol, for use in tests.
package kvstoretest

import (
	"encoding/json"
	"encoding/xml"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"kvstore-collector/internal/collector/domain/model"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Request is one request received by the server. Path is kept escaped.
type Request struct {
	Method        string
	Path          string
	RawQuery      string
	ContentType   string
	Authorization string
	Body          string
}

// Form decodes an urlencoded request body.
func (r Request) Form() url.Values {
	v, _ := url.ParseQuery(r.Body)
	return v
}

// Lookup is a registered lookup definition.
type Lookup struct {
	Name       string
	App        string
	Collection string
	FieldsList string
}

// Failure makes matching requests fail. Method and PathContains narrow the
// match; an empty value matches anything. Times == 0 fails forever.
type Failure struct {
	Method       string
	PathContains string
	Status       int
	Delay        time.Duration
	Times        int
}

type collection struct {
	app     string
	name    string
	fields  map[string]string
	keys    []string
	records map[string]*model.Record
}

// Server is a fake key-value store.
type Server struct {
	app *fiber.App
	ln  net.Listener

	mu          sync.Mutex
	auth        string
	collections map[string]*collection
	order       []string
	lookups     map[string]Lookup
	failures    []*Failure
	requests    []Request
}

// NewServer starts a server on a loopback port and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s, err := Start()
	if err != nil {
		t.Fatalf("failed to start fake store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Start starts a server on a loopback port.
func Start() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:          ln,
		collections: make(map[string]*collection),
		lookups:     make(map[string]Lookup),
	}
	s.app = fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
	})
	s.routes()

	go func() { _ = s.app.Listener(ln) }()
	return s, nil
}

// Host is the base URL clients should use.
func (s *Server) Host() string {
	return "http://" + s.ln.Addr().String()
}

// Close stops the server. Requests made afterwards fail at the transport.
func (s *Server) Close() error {
	return s.app.ShutdownWithTimeout(time.Second)
}

// RequireAuthorization rejects requests whose Authorization header differs
// from value. By default any non-empty header is accepted.
func (s *Server) RequireAuthorization(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = value
}

// Fail registers a failure rule.
func (s *Server) Fail(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &f)
}

// AddCollection creates a collection directly.
func (s *Server) AddCollection(app, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCollectionLocked(app, name)
}

// PutRecord stores a record directly, returning its key.
func (s *Server) PutRecord(name string, record *model.Record) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[name]
	if !ok {
		coll = s.addCollectionLocked("", name)
	}
	key, _ := coll.insert(record.Clone())
	return key
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Collections returns collection names in creation order.
func (s *Server) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Fields returns the configured field types of a collection.
func (s *Server) Fields(name string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	if coll, ok := s.collections[name]; ok {
		for k, v := range coll.fields {
			out[k] = v
		}
	}
	return out
}

// Records returns copies of the stored records in insertion order.
func (s *Server) Records(name string) []*model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[name]
	if !ok {
		return nil
	}
	out := make([]*model.Record, 0, len(coll.keys))
	for _, k := range coll.keys {
		out = append(out, coll.records[k].Clone())
	}
	return out
}

// Record returns a copy of the record stored under key.
func (s *Server) Record(name, key string) (*model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	r, ok := coll.records[key]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// LookupDefinition returns a registered lookup.
func (s *Server) LookupDefinition(name string) (Lookup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookups[name]
	return l, ok
}

func (s *Server) routes() {
	s.app.Use(s.record, s.authorize, s.inject)

	ns := s.app.Group("/servicesNS/:owner/:app")
	ns.Get("/storage/collections/config", s.listCollections)
	ns.Post("/storage/collections/config", s.createCollection)
	ns.Post("/storage/collections/config/:collection", s.configureFields)
	ns.Post("/storage/collections/data/:collection", s.insertRecord)
	ns.Post("/storage/collections/data/:collection/:key", s.updateRecord)
	ns.Get("/storage/collections/data/:collection/:key", s.getRecord)
	ns.Delete("/storage/collections/data/:collection", s.deleteRecords)
	ns.Delete("/storage/collections/data/:collection/:key", s.deleteRecord)
	ns.Post("/data/transforms/lookups", s.createLookup)
	ns.Post("/data/transforms/lookups/:name", s.updateLookup)
}

func (s *Server) record(c *fiber.Ctx) error {
	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:        c.Method(),
		Path:          c.Path(),
		RawQuery:      string(c.Request().URI().QueryString()),
		ContentType:   c.Get(fiber.HeaderContentType),
		Authorization: c.Get(fiber.HeaderAuthorization),
		Body:          string(c.Body()),
	})
	s.mu.Unlock()
	return c.Next()
}

func (s *Server) authorize(c *fiber.Ctx) error {
	got := c.Get(fiber.HeaderAuthorization)
	s.mu.Lock()
	want := s.auth
	s.mu.Unlock()
	if got == "" || (want != "" && got != want) {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	return c.Next()
}

func (s *Server) inject(c *fiber.Ctx) error {
	s.mu.Lock()
	var hit *Failure
	for _, f := range s.failures {
		if f.Method != "" && f.Method != c.Method() {
			continue
		}
		if f.PathContains != "" && !strings.Contains(c.Path(), f.PathContains) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				f.Times = -1
			}
		} else if f.Times < 0 {
			continue
		}
		hit = f
		break
	}
	s.mu.Unlock()

	if hit == nil {
		return c.Next()
	}
	if hit.Delay > 0 {
		time.Sleep(hit.Delay)
	}
	if hit.Status == 0 {
		return c.Next()
	}
	return c.SendStatus(hit.Status)
}

type feed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title   string      `xml:"title"`
	Entries []feedEntry `xml:"entry"`
}

type feedEntry struct {
	Title string `xml:"title"`
}

func (s *Server) listCollections(c *fiber.Ctx) error {
	app := param(c, "app")
	s.mu.Lock()
	out := feed{Title: "collections-conf"}
	for _, name := range s.order {
		coll := s.collections[name]
		if app == "-" || coll.app == "" || coll.app == app {
			out.Entries = append(out.Entries, feedEntry{Title: name})
		}
	}
	s.mu.Unlock()

	body, err := xml.Marshal(out)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	c.Set(fiber.HeaderContentType, "application/atom+xml; charset=utf-8")
	return c.Send(append([]byte(xml.Header), body...))
}

func (s *Server) createCollection(c *fiber.Ctx) error {
	form := formOf(c)
	name := form.Get("name")
	if name == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists {
		return c.SendStatus(fiber.StatusConflict)
	}
	s.addCollectionLocked(param(c, "app"), name)
	return c.SendStatus(fiber.StatusCreated)
}

func (s *Server) configureFields(c *fiber.Ctx) error {
	form := formOf(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[param(c, "collection")]
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	for k := range form {
		if name, found := strings.CutPrefix(k, model.FieldPrefix); found {
			coll.fields[name] = form.Get(k)
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) insertRecord(c *fiber.Ctx) error {
	record := model.NewRecord()
	if err := json.Unmarshal(c.Body(), record); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[param(c, "collection")]
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	key, ok := coll.insert(record)
	if !ok {
		return c.SendStatus(fiber.StatusConflict)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{model.FieldKey: key})
}

func (s *Server) updateRecord(c *fiber.Ctx) error {
	record := model.NewRecord()
	if err := json.Unmarshal(c.Body(), record); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	key := param(c, "key")
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[param(c, "collection")]
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	if _, exists := coll.records[key]; !exists {
		return c.SendStatus(fiber.StatusNotFound)
	}
	record.Set(model.FieldKey, key)
	coll.records[key] = record
	return c.JSON(fiber.Map{model.FieldKey: key})
}

func (s *Server) getRecord(c *fiber.Ctx) error {
	key := param(c, "key")
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[param(c, "collection")]
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	record, exists := coll.records[key]
	if !exists {
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.JSON(record)
}

func (s *Server) deleteRecord(c *fiber.Ctx) error {
	key := param(c, "key")
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[param(c, "collection")]
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	if _, exists := coll.records[key]; !exists {
		return c.SendStatus(fiber.StatusNotFound)
	}
	delete(coll.records, key)
	for i, k := range coll.keys {
		if k == key {
			coll.keys = append(coll.keys[:i], coll.keys[i+1:]...)
			break
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) deleteRecords(c *fiber.Ctx) error {
	var query model.Query
	if raw := c.Query("query"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &query); err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[param(c, "collection")]
	if !ok {
		return c.SendStatus(fiber.StatusNotFound)
	}
	kept := coll.keys[:0]
	for _, k := range coll.keys {
		if len(query) == 0 || query.Matches(coll.records[k].Map()) {
			delete(coll.records, k)
			continue
		}
		kept = append(kept, k)
	}
	coll.keys = kept
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) createLookup(c *fiber.Ctx) error {
	form := formOf(c)
	name := form.Get("name")
	if name == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lookups[name]; exists {
		return c.SendStatus(fiber.StatusConflict)
	}
	s.lookups[name] = Lookup{
		Name:       name,
		App:        param(c, "app"),
		Collection: form.Get("collection"),
		FieldsList: form.Get("fields_list"),
	}
	return c.SendStatus(fiber.StatusCreated)
}

func (s *Server) updateLookup(c *fiber.Ctx) error {
	form := formOf(c)
	name := param(c, "name")
	s.mu.Lock()
	defer s.mu.Unlock()
	l, exists := s.lookups[name]
	if !exists {
		return c.SendStatus(fiber.StatusNotFound)
	}
	if v := form.Get("collection"); v != "" {
		l.Collection = v
	}
	l.FieldsList = form.Get("fields_list")
	s.lookups[name] = l
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) addCollectionLocked(app, name string) *collection {
	coll := &collection{
		app:     app,
		name:    name,
		fields:  make(map[string]string),
		records: make(map[string]*model.Record),
	}
	s.collections[name] = coll
	s.order = append(s.order, name)
	return coll
}

// insert stores record under its _key, or a fresh one. A duplicate key is refused.
func (c *collection) insert(record *model.Record) (string, bool) {
	key := ""
	if v, ok := record.Get(model.FieldKey); ok {
		key = model.ScalarString(v)
	}
	if key == "" {
		key = uuid.NewString()
	}
	if _, exists := c.records[key]; exists {
		return "", false
	}
	record.Set(model.FieldKey, key)
	c.records[key] = record
	c.keys = append(c.keys, key)
	return key, true
}

// param returns a decoded route parameter. Routing happens on the escaped
// path so that a key holding "/" stays a single segment.
func param(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}

func formOf(c *fiber.Ctx) url.Values {
	v, _ := url.ParseQuery(string(c.Body()))
	return v
}

// SortedFields returns the configured field names of a collection, sorted.
func (s *Server) SortedFields(name string) []string {
	fields := s.Fields(name)
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
