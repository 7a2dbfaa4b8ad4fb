package platform

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_PostsToChannel(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody wirePayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"id":"msg-42"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "tok", "chan-1")
	id, err := c.Send(context.Background(), &Outgoing{
		Content: "hello",
		Embed:   &Embed{Title: "Working", Color: ColorNeutral},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-42", id)
	assert.Equal(t, "POST /channels/chan-1/messages", gotPath)
	assert.Equal(t, "Bot tok", gotAuth)
	assert.Equal(t, "hello", gotBody.Content)
	require.Len(t, gotBody.Embeds, 1)
	assert.Equal(t, "Working", gotBody.Embeds[0].Title)
}

func TestEdit_PatchesMessage(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.Write([]byte(`{"id":"msg-42"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "tok", "chan-1")
	err := c.Edit(context.Background(), "msg-42", &Outgoing{Content: "updated"})
	require.NoError(t, err)
	assert.Equal(t, "PATCH /channels/chan-1/messages/msg-42", gotPath)
}

func TestSend_FilesUseMultipart(t *testing.T) {
	var payload wirePayload
	var fileName, fileData string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/form-data", mt)

		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, err := io.ReadAll(part)
			require.NoError(t, err)
			if part.FormName() == "payload_json" {
				require.NoError(t, json.Unmarshal(data, &payload))
			} else if strings.HasPrefix(part.FormName(), "files[") {
				fileName = part.FileName()
				fileData = string(data)
			}
		}
		w.Write([]byte(`{"id":"msg-7"}`))
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "tok", "chan-1")
	id, err := c.Send(context.Background(), &Outgoing{
		Content: "response attached",
		Files:   []File{{Name: "response.md", Data: []byte("# Full text")}},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-7", id)
	assert.Equal(t, "response attached", payload.Content)
	assert.Equal(t, "response.md", fileName)
	assert.Equal(t, "# Full text", fileData)
}

func TestSend_ErrorStatusIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Missing Access"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewRESTClient(srv.URL, "tok", "chan-1")
	_, err := c.Send(context.Background(), &Outgoing{Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestBuildPayload_Components(t *testing.T) {
	p := buildPayload(&Outgoing{
		Components: []ActionRow{{Buttons: []Button{
			{Label: "New session", CustomID: "session:new"},
			{Label: "Abort", CustomID: "session:abort", Style: ButtonDanger},
		}}},
	})

	require.Len(t, p.Components, 1)
	row := p.Components[0]
	assert.Equal(t, 1, row.Type)
	require.Len(t, row.Components, 2)
	assert.Equal(t, ButtonSecondary, row.Components[0].Style)
	assert.Equal(t, ButtonDanger, row.Components[1].Style)
}
