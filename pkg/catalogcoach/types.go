package catalogcoach

import (
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/audio"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/catalog"
	"github.com/himanishpuri/CatalogCoach/pkg/catalogcoach/fingerprint"
	"github.com/himanishpuri/CatalogCoach/pkg/models"
	"github.com/himanishpuri/CatalogCoach/pkg/utils"
)

const (
	CatalogFileExtension  = catalog.FileExtension
	CatalogTypeIdentifier = catalog.TypeIdentifier
)

// CustomSignatureRecord pairs a signature with the media item it represents.
// Records are never modified after creation.
type CustomSignatureRecord struct {
	ID        string
	MediaItem models.MediaItem
	signature *fingerprint.Signature
}

func NewCustomSignatureRecord(sig *fingerprint.Signature, props models.MediaItemProperties) CustomSignatureRecord {
	return CustomSignatureRecord{
		ID:        utils.GenerateUUID(),
		MediaItem: models.NewMediaItem(props),
		signature: sig,
	}
}

func (r CustomSignatureRecord) Signature() *fingerprint.Signature { return r.signature }

// SupportedAudioExtensions lists the file extensions signatures can be
// generated from.
func SupportedAudioExtensions() []string {
	return audio.SupportedExtensions()
}

// FileNameWithoutExtension is the default record title for a file.
func FileNameWithoutExtension(path string) string {
	return utils.FileNameWithoutExtension(path)
}
