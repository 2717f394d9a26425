package artifact

import (
	"fmt"

	"billoffice/internal/model"
)

// Category is the storage-path segment naming an artifact's purpose. The
// strings are part of the stable storage contract: changing one orphans
// every artifact already stored under it.
type Category string

const (
	// CategoryNone omits the category segment. Invoice PDFs live directly
	// under Invoices/{ownerId}/.
	CategoryNone Category = ""
	// CategoryGeneratedPDFs holds rendered expense PDFs.
	CategoryGeneratedPDFs Category = "Generated_pdfs"
	// CategoryUploaded holds user-uploaded supporting documents.
	CategoryUploaded Category = "Uploaded_Documents"
)

// DerivePath builds the canonical storage path for an artifact. Callers
// reconstruct the same path for deletion without any reverse lookup.
func DerivePath(kind model.DocumentKind, category Category, ownerID int64, filename string) string {
	if category == CategoryNone {
		return fmt.Sprintf("%s/%d/%s", kind, ownerID, filename)
	}
	return fmt.Sprintf("%s/%s/%d/%s", kind, category, ownerID, filename)
}
