package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const (
	chatActionRefreshInterval = 4 * time.Second
	maxPhotoBytes             = 20 << 20
	downloadTimeout           = 30 * time.Second
	outputFileName            = "filtered.jpg"
)

// Image applies the filter named in a photo's caption and sends the result back.
type Image struct {
	client     Client
	httpClient *http.Client
	log        *slog.Logger
}

func NewImage(client Client, log *slog.Logger) *Image {
	return &Image{
		client:     client,
		httpClient: &http.Client{Timeout: downloadTimeout},
		log:        log.With("component", "bot.image"),
	}
}

func (b *Image) HandleMessage(ctx context.Context, msg telego.Message) error {
	if msg.Chat.ID == 0 {
		return badInput("message has no chat", codeMissingChat)
	}
	if len(msg.Photo) == 0 {
		return sendText(ctx, b.client, msg, usage(), false)
	}

	filter, ok := lookupFilter(msg.Caption)
	if !ok {
		return sendText(ctx, b.client, msg, usage(), true)
	}

	stopAction := b.startChatAction(ctx, msg.Chat.ID, telego.ChatActionUploadPhoto)
	defer stopAction()

	photo := largestPhoto(msg.Photo)
	b.log.Info("Processing photo", "chat_id", msg.Chat.ID, "message_id", msg.MessageID,
		"filter", msg.Caption, "width", photo.Width, "height", photo.Height)

	src, err := b.download(ctx, photo.FileID)
	if err != nil {
		b.replyFailure(ctx, msg)
		return err
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		b.replyFailure(ctx, msg)
		return operationFailed(err, "decode photo", codeDecodeFailed)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, filter(img), imaging.JPEG); err != nil {
		b.replyFailure(ctx, msg)
		return operationFailed(err, "encode photo", codeEncodeFailed)
	}

	params := tu.Photo(tu.ID(msg.Chat.ID), tu.File(tu.NameReader(&out, outputFileName)))
	params.ReplyParameters = &telego.ReplyParameters{MessageID: msg.MessageID}
	if _, err := b.client.SendPhoto(ctx, params); err != nil {
		return operationFailed(err, "send photo", codeSendFailed)
	}

	return nil
}

// download resolves a file ID through getFile and fetches its bytes.
func (b *Image) download(ctx context.Context, fileID string) ([]byte, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, badInput("photo has no file id", codeMissingPhoto)
	}

	file, err := b.client.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, operationFailed(err, "get file", codeFileUnavailable)
	}
	if file == nil || file.FilePath == "" {
		return nil, badInput("file is not available for download", codeFileUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.client.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return nil, operationFailed(err, "build download request", codeDownloadFailed)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, operationFailed(err, "download photo", codeDownloadFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, operationFailed(fmt.Errorf("unexpected status %d", resp.StatusCode), "download photo", codeDownloadFailed)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, operationFailed(err, "read photo", codeDownloadFailed)
	}
	if len(data) > maxPhotoBytes {
		return nil, badInput("photo exceeds size limit", codeDownloadFailed)
	}

	return data, nil
}

func (b *Image) replyFailure(ctx context.Context, msg telego.Message) {
	if err := sendText(ctx, b.client, msg, "Something went wrong while processing your photo, please try again.", true); err != nil {
		b.log.Debug("Failed to send failure notice", "chat_id", msg.Chat.ID, "error", err)
	}
}

// startChatAction sends a chat action and refreshes it until the returned cancel is called.
func (b *Image) startChatAction(ctx context.Context, chatID int64, action string) context.CancelFunc {
	actionCtx, cancel := context.WithCancel(ctx)

	send := func() {
		if err := b.client.SendChatAction(actionCtx, tu.ChatAction(tu.ID(chatID), action)); err != nil && actionCtx.Err() == nil {
			b.log.Debug("Failed to send chat action", "chat_id", chatID, "error", err)
		}
	}

	send()

	go func() {
		ticker := time.NewTicker(chatActionRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-actionCtx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()

	return cancel
}

func largestPhoto(sizes []telego.PhotoSize) telego.PhotoSize {
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}
	return best
}

func usage() string {
	return "Send a photo with one of these captions: " + strings.Join(filterNames(), ", ") + "."
}
