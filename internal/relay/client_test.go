package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	endpoint string
	field    string
	data     []byte
}

// relayServer fakes the upstream Bot API. respond maps endpoint name to a
// JSON body and status; everything is recorded for assertions.
func relayServer(t *testing.T, respond map[string]func() (int, string)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path[len("/botTOKEN/"):]
		require.NoError(t, r.ParseMultipartForm(10<<20))

		rec := recordedRequest{endpoint: endpoint}
		for field := range r.MultipartForm.File {
			f, _, err := r.FormFile(field)
			require.NoError(t, err)
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			f.Close()
			rec.field = field
			rec.data = data
		}
		seen = append(seen, rec)

		status, body := respond[endpoint]()
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestSendSelectsEndpointByMediaKind(t *testing.T) {
	tests := []struct {
		mime     string
		endpoint string
		field    string
		body     string
	}{
		{"image/png", "sendPhoto", "photo", `{"ok":true,"result":{"photo":[{"file_id":"small","file_size":10},{"file_id":"big","file_size":99}]}}`},
		{"video/mp4", "sendVideo", "video", `{"ok":true,"result":{"video":{"file_id":"vid"}}}`},
		{"audio/mpeg", "sendAudio", "audio", `{"ok":true,"result":{"audio":{"file_id":"aud"}}}`},
		{"application/pdf", "sendDocument", "document", `{"ok":true,"result":{"document":{"file_id":"doc"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			srv, seen := relayServer(t, map[string]func() (int, string){
				tt.endpoint: func() (int, string) { return 200, tt.body },
			})

			c := NewClient(nil, srv.URL, "TOKEN", "chat42")
			fileID, err := c.Send(context.Background(), Payload{Name: "f", MIME: tt.mime, Data: []byte("bytes")})
			require.NoError(t, err)

			require.Len(t, *seen, 1)
			assert.Equal(t, tt.endpoint, (*seen)[0].endpoint)
			assert.Equal(t, tt.field, (*seen)[0].field)
			assert.NotEmpty(t, fileID)
		})
	}
}

func TestSendPicksLargestPhotoVariant(t *testing.T) {
	srv, _ := relayServer(t, map[string]func() (int, string){
		"sendPhoto": func() (int, string) {
			return 200, `{"ok":true,"result":{"photo":[{"file_id":"small","file_size":10},{"file_id":"big","file_size":9000},{"file_id":"mid","file_size":500}]}}`
		},
	})

	c := NewClient(nil, srv.URL, "TOKEN", "chat42")
	fileID, err := c.Send(context.Background(), Payload{Name: "p.png", MIME: "image/png", Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, "big", fileID)
}

func TestSendPhotoRejectionFallsBackToDocument(t *testing.T) {
	srv, seen := relayServer(t, map[string]func() (int, string){
		"sendPhoto": func() (int, string) {
			return 400, `{"ok":false,"description":"PHOTO_INVALID_DIMENSIONS"}`
		},
		"sendDocument": func() (int, string) {
			return 200, `{"ok":true,"result":{"document":{"file_id":"doc777"}}}`
		},
	})

	c := NewClient(nil, srv.URL, "TOKEN", "chat42")
	payload := []byte("weird image bytes")
	fileID, err := c.Send(context.Background(), Payload{Name: "odd.png", MIME: "image/png", Data: payload})
	require.NoError(t, err)
	assert.Equal(t, "doc777", fileID)

	require.Len(t, *seen, 2)
	assert.Equal(t, "sendPhoto", (*seen)[0].endpoint)
	assert.Equal(t, "sendDocument", (*seen)[1].endpoint)
	assert.Equal(t, "document", (*seen)[1].field)
	assert.Equal(t, payload, (*seen)[1].data, "fallback must resend the same bytes")
}

func TestSendRejectionOnNonPhotoEndpointDoesNotFallBack(t *testing.T) {
	srv, seen := relayServer(t, map[string]func() (int, string){
		"sendVideo": func() (int, string) {
			return 400, `{"ok":false,"description":"chat not found"}`
		},
	})

	c := NewClient(nil, srv.URL, "TOKEN", "chat42")
	_, err := c.Send(context.Background(), Payload{Name: "v.mp4", MIME: "video/mp4", Data: []byte("v")})

	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "chat not found", rej.Description)
	assert.Len(t, *seen, 1)
}

// countingTransport fails every request at the transport level.
type countingTransport struct {
	calls int
}

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls++
	return nil, errors.New("connection reset by peer")
}

func TestSendRetriesTransportFailuresThreeTimes(t *testing.T) {
	transport := &countingTransport{}
	c := NewClient(&http.Client{Transport: transport}, "http://relay.invalid", "TOKEN", "chat42")
	c.backoff = time.Millisecond

	_, err := c.Send(context.Background(), Payload{Name: "v.mp4", MIME: "video/mp4", Data: []byte("v")})
	require.Error(t, err)

	var rej *RejectionError
	assert.False(t, errors.As(err, &rej), "transport failure must not look like an upstream rejection")
	assert.Equal(t, 3, transport.calls, "one attempt plus two retries")
}

// scriptedTransport replays canned outcomes in order.
type scriptedTransport struct {
	script []func(*http.Request) (*http.Response, error)
	calls  int
}

func (s *scriptedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	step := s.script[s.calls]
	s.calls++
	return step(r)
}

func TestSendNetworkRetryAppliesDuringFallback(t *testing.T) {
	reject := func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 400,
			Body:       io.NopCloser(strings.NewReader(`{"ok":false,"description":"PHOTO_INVALID_DIMENSIONS"}`)),
			Header:     http.Header{},
		}, nil
	}
	fail := func(*http.Request) (*http.Response, error) {
		return nil, errors.New("broken pipe")
	}
	accept := func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Body:       io.NopCloser(strings.NewReader(`{"ok":true,"result":{"document":{"file_id":"recovered"}}}`)),
			Header:     http.Header{},
		}, nil
	}

	transport := &scriptedTransport{script: []func(*http.Request) (*http.Response, error){
		reject, // sendPhoto rejected -> fall back
		fail,   // sendDocument transport failure -> retry
		accept, // sendDocument succeeds
	}}

	c := NewClient(&http.Client{Transport: transport}, "http://relay.invalid", "TOKEN", "chat42")
	c.backoff = time.Millisecond

	fileID, err := c.Send(context.Background(), Payload{Name: "p.png", MIME: "image/png", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "recovered", fileID)
	assert.Equal(t, 3, transport.calls)
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getFile":
			assert.Equal(t, "raw-id", r.URL.Query().Get("file_id"))
			fmt.Fprint(w, `{"ok":true,"result":{"file_path":"documents/file_7.bin","file_size":5,"mime_type":"application/pdf"}}`)
		case "/file/botTOKEN/documents/file_7.bin":
			fmt.Fprint(w, "hello")
		default:
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "TOKEN", "chat42")
	obj, err := c.Resolve(context.Background(), "raw-id")
	require.NoError(t, err)
	defer obj.Body.Close()

	assert.Equal(t, "application/pdf", obj.MIME)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "file_7.bin", obj.Name)

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestResolveUnknownIDIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		fmt.Fprint(w, `{"ok":false,"description":"Bad Request: invalid file_id"}`)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "TOKEN", "chat42")
	_, err := c.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveMalformedMetadataIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "TOKEN", "chat42")
	_, err := c.Resolve(context.Background(), "no-path")
	assert.ErrorIs(t, err, ErrNotFound)
}
