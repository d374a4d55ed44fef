package pinata

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"nft-ticket/internal/status"
	"nft-ticket/models"
)

// Pinner is what event creation needs from the content store.
type Pinner interface {
	PinFile(ctx context.Context, name string, data []byte) (CID, error)
	PinJSON(ctx context.Context, v any) (CID, error)
}

type Image struct {
	FileName string
	Data     []byte
}

// Assets are the two pins backing one event.
type Assets struct {
	ImageCID    CID
	MetadataCID CID
	Metadata    models.NFTMetadata
}

// UploadEventAssets pins the image under a random name that keeps its
// extension, then pins the NFT metadata that references it. Either failure is
// reported as *status.UploadError and nothing is returned.
func UploadEventAssets(ctx context.Context, p Pinner, e models.Event, img Image, now time.Time) (Assets, error) {
	name := uuid.NewString()
	if ext := strings.TrimPrefix(filepath.Ext(img.FileName), "."); ext != "" {
		name += "." + ext
	}

	imageCID, err := p.PinFile(ctx, name, img.Data)
	if err != nil {
		return Assets{}, &status.UploadError{Stage: "image", Err: err}
	}

	meta := models.NewNFTMetadata(e, imageCID.URI(), now)
	metaCID, err := p.PinJSON(ctx, meta)
	if err != nil {
		return Assets{}, &status.UploadError{Stage: "metadata", Err: err}
	}

	return Assets{ImageCID: imageCID, MetadataCID: metaCID, Metadata: meta}, nil
}
