package pii

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
)

// stubAnalyzer returns canned spans, or fails every call.
type stubAnalyzer struct {
	spans       []CandidateSpan
	err         error
	ready       bool
	gotLanguage string
}

func (s *stubAnalyzer) Analyze(_ context.Context, _, language string, _ float64) ([]CandidateSpan, error) {
	s.gotLanguage = language
	if s.err != nil {
		return nil, s.err
	}
	return s.spans, nil
}

func (s *stubAnalyzer) IsReady() bool { return s.ready }

func newFallbackOnlyService() *Service {
	return NewService(Options{})
}

func TestAnonymizeBirthDateVsAppointment(t *testing.T) {
	// Scenario: explicit birth dates are replaced while other dates in the
	// same text survive byte-identical.
	svc := newFallbackOnlyService()

	text := "DOB: 05/15/1980, Appointment Date: 03/20/2024"
	res, err := svc.Anonymize(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	if strings.Contains(res.Text, "05/15/1980") {
		t.Errorf("birth date leaked: %q", res.Text)
	}
	if !strings.Contains(res.Text, "03/20/2024") {
		t.Errorf("appointment date must survive unchanged: %q", res.Text)
	}
	if res.Method != MethodFallback {
		t.Errorf("method = %s, want %s", res.Method, MethodFallback)
	}
}

func TestAnonymizePseudonymPreserved(t *testing.T) {
	svc := newFallbackOnlyService()

	text := "user123 said my SSN is 111-22-3333"
	res, err := svc.Anonymize(context.Background(), text, "user123")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	if !strings.Contains(res.Text, "user123") {
		t.Errorf("pseudonym must survive: %q", res.Text)
	}
	if strings.Contains(res.Text, "111-22-3333") {
		t.Errorf("SSN leaked: %q", res.Text)
	}
	if res.Pseudonym != "user123" {
		t.Errorf("pseudonym not echoed: %q", res.Pseudonym)
	}
}

func TestAnonymizeCommonWordsNotRedacted(t *testing.T) {
	// An over-eager NER model tags "tech evolve" as an organization; the
	// common-word filter must suppress it.
	text := "I've seen tech evolve"
	start := strings.Index(text, "tech")
	analyzer := &stubAnalyzer{
		ready: true,
		spans: []CandidateSpan{
			{EntityType: "ORGANIZATION", Start: start, End: start + len("tech evolve"), Score: 0.9},
		},
	}
	svc := NewService(Options{Analyzer: analyzer})

	res, err := svc.Anonymize(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if res.Text != text {
		t.Errorf("common words were redacted: %q", res.Text)
	}
}

func TestAnonymizeRealCompanyNames(t *testing.T) {
	text := "I work at Google Inc. and Microsoft Corporation"
	g := strings.Index(text, "Google")
	m := strings.Index(text, "Microsoft")
	analyzer := &stubAnalyzer{
		ready: true,
		spans: []CandidateSpan{
			{EntityType: "ORGANIZATION", Start: g, End: g + len("Google Inc."), Score: 0.95},
			{EntityType: "ORGANIZATION", Start: m, End: m + len("Microsoft Corporation"), Score: 0.95},
		},
	}
	svc := NewService(Options{Analyzer: analyzer})

	res, err := svc.Anonymize(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	if strings.Contains(res.Text, "Google") || strings.Contains(res.Text, "Microsoft") {
		t.Errorf("company names leaked: %q", res.Text)
	}
	if strings.Count(res.Text, "organization") != 2 {
		t.Errorf("expected two organization placeholders: %q", res.Text)
	}
	if res.Strategy != StrategyStructured {
		t.Errorf("primary spans should take the structured path, got %s", res.Strategy)
	}
}

func TestAnonymizePrimaryFailureFallsBack(t *testing.T) {
	// Scenario: the primary detector raises on every call; a credit card
	// still gets redacted through the fallback/direct path.
	analyzer := &stubAnalyzer{ready: true, err: fmt.Errorf("model crashed")}
	svc := NewService(Options{Analyzer: analyzer})

	text := "charge it to 4111-1111-1111-1111 please"
	res, err := svc.Anonymize(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	if strings.Contains(res.Text, "4111") {
		t.Errorf("credit card leaked: %q", res.Text)
	}
	if res.Method != MethodFallback {
		t.Errorf("method = %s, want %s", res.Method, MethodFallback)
	}
	if res.Strategy != StrategyDirect {
		t.Errorf("fallback spans must take the direct path, got %s", res.Strategy)
	}

	wantStates := []State{StateIdle, StateDetectPrimary, StateDetectFallback, StateRedactingDirect, StateDone}
	if len(res.States) != len(wantStates) {
		t.Fatalf("states = %v, want %v", res.States, wantStates)
	}
	for i, st := range wantStates {
		if res.States[i] != st {
			t.Errorf("state %d = %s, want %s", i, res.States[i], st)
		}
	}
}

func TestAnonymizeStructuredFailureEscalatesToDirect(t *testing.T) {
	text := "Jane is here"
	analyzer := &stubAnalyzer{
		ready: true,
		spans: []CandidateSpan{{EntityType: "PERSON", Start: 0, End: 4, Score: 0.9}},
	}
	svc := NewService(Options{Analyzer: analyzer, Applier: failingApplier{}})

	res, err := svc.Anonymize(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if strings.Contains(res.Text, "Jane") {
		t.Errorf("name leaked after strategy escalation: %q", res.Text)
	}
	if res.Strategy != StrategyDirect {
		t.Errorf("strategy = %s, want %s", res.Strategy, StrategyDirect)
	}

	var sawStructured, sawDirect bool
	for _, st := range res.States {
		if st == StateRedactingStructure {
			sawStructured = true
		}
		if st == StateRedactingDirect {
			sawDirect = true
		}
	}
	if !sawStructured || !sawDirect {
		t.Errorf("expected both redaction states, got %v", res.States)
	}
}

// flakyEngine fails structured redaction always and direct redaction a set
// number of times before delegating to the real engine. It drives the
// cascade into its emergency and exhaustion transitions.
type flakyEngine struct {
	real        *Redactor
	directFails int
}

func (e *flakyEngine) RedactStructured(string, []CandidateSpan) (string, []RedactionSpan, error) {
	return "", nil, errors.New("structured engine offline")
}

func (e *flakyEngine) RedactDirect(text string, spans []CandidateSpan) (string, []RedactionSpan, error) {
	if e.directFails > 0 {
		e.directFails--
		return "", nil, errors.New("direct apply failed")
	}
	return e.real.RedactDirect(text, spans)
}

func TestAnonymizeEmergencyFallbackStillRedacts(t *testing.T) {
	// First direct attempt fails, the emergency re-detection retries the
	// direct path and must still redact.
	svc := newFallbackOnlyService()
	svc.redactor = &flakyEngine{real: NewRedactor(DefaultPolicy(), nil), directFails: 1}

	text := "my SSN is 123-45-6789"
	res, err := svc.Anonymize(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}

	if strings.Contains(res.Text, "123-45-6789") {
		t.Errorf("SSN leaked through emergency path: %q", res.Text)
	}
	if res.Method != MethodEmergency {
		t.Errorf("method = %s, want %s", res.Method, MethodEmergency)
	}
	if res.Strategy != StrategyDirect {
		t.Errorf("strategy = %s, want %s", res.Strategy, StrategyDirect)
	}

	wantStates := []State{StateIdle, StateDetectFallback, StateRedactingDirect, StateEmergencyFallback, StateDone}
	if len(res.States) != len(wantStates) {
		t.Fatalf("states = %v, want %v", res.States, wantStates)
	}
	for i, st := range wantStates {
		if res.States[i] != st {
			t.Errorf("state %d = %s, want %s", i, res.States[i], st)
		}
	}
}

func TestAnonymizeCascadeExhausted(t *testing.T) {
	// Both direct attempts fail: the caller gets the sentinel error and
	// nothing else, never the original text.
	svc := newFallbackOnlyService()
	svc.redactor = &flakyEngine{real: NewRedactor(DefaultPolicy(), nil), directFails: 2}

	res, err := svc.Anonymize(context.Background(), "my SSN is 123-45-6789", "")
	if !errors.Is(err, ErrCascadeExhausted) {
		t.Fatalf("expected ErrCascadeExhausted, got %v", err)
	}
	if res != nil {
		t.Errorf("exhausted cascade must return no result, got %+v", res)
	}
	if strings.Contains(err.Error(), "123-45-6789") {
		t.Errorf("error must carry no text payload: %v", err)
	}
}

func TestAnonymizeNoLeakOnFullCascade(t *testing.T) {
	// Even when the primary detector reports garbage offsets, the output
	// never contains the original sensitive text.
	text := "SSN 123-45-6789 right here"
	analyzer := &stubAnalyzer{
		ready: true,
		spans: []CandidateSpan{{EntityType: "SSN", Start: 4, End: 15, Score: 0.99}},
	}
	svc := NewService(Options{Analyzer: analyzer})

	res, err := svc.Anonymize(context.Background(), text, "")
	if err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if strings.Contains(res.Text, "123-45-6789") {
		t.Errorf("SSN leaked: %q", res.Text)
	}
}

func TestAnonymizeIdempotent(t *testing.T) {
	// Redacting already-redacted text is a no-op: placeholders contain no
	// PII-shaped content.
	svc := newFallbackOnlyService()

	res1, err := svc.Anonymize(context.Background(), "SSN 123-45-6789, email jane@example.com", "")
	if err != nil {
		t.Fatal(err)
	}
	res2, err := svc.Anonymize(context.Background(), res1.Text, "")
	if err != nil {
		t.Fatal(err)
	}
	if res2.Text != res1.Text {
		t.Errorf("second pass changed output:\n first: %q\nsecond: %q", res1.Text, res2.Text)
	}
	if len(res2.Spans) != 0 {
		t.Errorf("second pass found %d spans in clean text", len(res2.Spans))
	}
}

func TestAnonymizeTinyInput(t *testing.T) {
	svc := newFallbackOnlyService()

	for _, text := range []string{"", "a", "ab"} {
		res, err := svc.Anonymize(context.Background(), text, "")
		if err != nil {
			t.Fatalf("Anonymize(%q): %v", text, err)
		}
		if res.Text != text {
			t.Errorf("tiny input %q changed to %q", text, res.Text)
		}
		if len(res.Spans) != 0 {
			t.Errorf("tiny input %q produced spans: %+v", text, res.Spans)
		}
	}
}

func TestAnonymizeAuditOrder(t *testing.T) {
	svc := newFallbackOnlyService()

	res, err := svc.Anonymize(context.Background(),
		"email jane@example.com then SSN 123-45-6789 then card 4111-1111-1111-1111", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Spans) < 3 {
		t.Fatalf("expected at least 3 audit spans, got %d", len(res.Spans))
	}
	if !sort.SliceIsSorted(res.Spans, func(i, j int) bool { return res.Spans[i].Start <= res.Spans[j].Start }) {
		t.Errorf("audit spans not in original text order: %+v", res.Spans)
	}
}

func TestDetectDegradesToEmpty(t *testing.T) {
	// Detection never errors out: a failing primary falls back, and clean
	// text is a valid empty answer.
	analyzer := &stubAnalyzer{ready: true, err: fmt.Errorf("down")}
	svc := NewService(Options{Analyzer: analyzer})

	spans, method := svc.Detect(context.Background(), "nothing sensitive in here", "")
	if len(spans) != 0 {
		t.Errorf("expected no spans, got %+v", spans)
	}
	if method != MethodFallback {
		t.Errorf("method = %s, want %s", method, MethodFallback)
	}
}

func TestDetectReportsSpans(t *testing.T) {
	svc := newFallbackOnlyService()

	spans, method := svc.Detect(context.Background(), "my SSN is 111-22-3333", "")
	if method != MethodFallback {
		t.Errorf("method = %s", method)
	}
	found := false
	for _, s := range spans {
		if s.EntityType == "SSN" && s.Text == "111-22-3333" {
			found = true
		}
	}
	if !found {
		t.Errorf("SSN not reported: %+v", spans)
	}
}

func TestLanguagePassThrough(t *testing.T) {
	analyzer := &stubAnalyzer{ready: true}
	svc := NewService(Options{Analyzer: analyzer})

	if _, err := svc.AnonymizeWithLanguage(context.Background(), "plain text", "", "de"); err != nil {
		t.Fatalf("AnonymizeWithLanguage: %v", err)
	}
	if analyzer.gotLanguage != "de" {
		t.Errorf("analyzer language = %q, want de", analyzer.gotLanguage)
	}

	if _, err := svc.Anonymize(context.Background(), "plain text", ""); err != nil {
		t.Fatalf("Anonymize: %v", err)
	}
	if analyzer.gotLanguage != "en" {
		t.Errorf("default language = %q, want en", analyzer.gotLanguage)
	}

	svc.DetectWithLanguage(context.Background(), "plain text", "", "fr")
	if analyzer.gotLanguage != "fr" {
		t.Errorf("detect language = %q, want fr", analyzer.gotLanguage)
	}
}

func TestDetectPseudonymProtected(t *testing.T) {
	svc := newFallbackOnlyService()

	spans, _ := svc.Detect(context.Background(), "reach me at user123@example.com", "user123@example.com")
	for _, s := range spans {
		if s.EntityType == "EMAIL_ADDRESS" {
			t.Errorf("protected pseudonym email reported: %+v", s)
		}
	}
}

func TestResolveOverlaps(t *testing.T) {
	svc := newFallbackOnlyService()

	spans := []CandidateSpan{
		{EntityType: "DATE_FULL", Start: 5, End: 15},
		{EntityType: "DATE_OF_BIRTH", Start: 0, End: 15},
		{EntityType: "SSN", Start: 20, End: 31},
	}
	got := svc.resolveOverlaps(spans)

	if len(got) != 2 {
		t.Fatalf("expected 2 spans after overlap resolution, got %d: %+v", len(got), got)
	}
	if got[0].EntityType != "DATE_OF_BIRTH" {
		t.Errorf("earliest-starting longest span must win, got %s", got[0].EntityType)
	}
	if got[1].EntityType != "SSN" {
		t.Errorf("disjoint span must survive, got %s", got[1].EntityType)
	}
}

func TestMLActive(t *testing.T) {
	if newFallbackOnlyService().MLActive() {
		t.Error("fallback-only service must not report ML active")
	}
	ready := NewService(Options{Analyzer: &stubAnalyzer{ready: true}})
	if !ready.MLActive() {
		t.Error("ready analyzer must report ML active")
	}
	notReady := NewService(Options{Analyzer: &stubAnalyzer{ready: false}})
	if notReady.MLActive() {
		t.Error("not-ready analyzer must not report ML active")
	}
}

func TestPrimaryDetectorNotReadySignalsUnavailable(t *testing.T) {
	classifier := NewClassifier(DefaultPolicy())
	pd := NewPrimaryDetector(&stubAnalyzer{ready: false}, classifier, "en", 0.7)

	_, err := pd.Detect(context.Background(), "text", "", "", nil)
	if !errors.Is(err, ErrDetectorUnavailable) {
		t.Fatalf("expected ErrDetectorUnavailable, got %v", err)
	}
}

func TestPrimaryDetectorDropsPseudonymSpans(t *testing.T) {
	classifier := NewClassifier(DefaultPolicy())
	text := "agent user123 called"
	analyzer := &stubAnalyzer{
		ready: true,
		spans: []CandidateSpan{
			// Wider than the pseudonym occurrence, so range overlap alone
			// would miss it without the containment check.
			{EntityType: "PERSON", Start: 0, End: 13, Score: 0.9},
		},
	}
	pd := NewPrimaryDetector(analyzer, classifier, "en", 0.7)

	spans, err := pd.Detect(context.Background(), text, "", "user123", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 0 {
		t.Errorf("span containing pseudonym must be dropped: %+v", spans)
	}
}
