package schema

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/listenupapp/bookshelf/internal/domain"
	"github.com/listenupapp/bookshelf/internal/errors"
	"github.com/listenupapp/bookshelf/internal/normalize"
	"github.com/listenupapp/bookshelf/internal/store"
)

//go:embed default_data.json
var defaultData []byte

// Dataset is the seed document. Pairing entries are [book, author] and
// [book, tag] tuples of 1-based positions into Books, Authors and Tags.
type Dataset struct {
	Books       []domain.Book   `json:"books"`
	Authors     []domain.Author `json:"authors"`
	Tags        []domain.Tag    `json:"tags"`
	BookAuthors [][2]int        `json:"bookAuthors"`
	BookTags    [][2]int        `json:"bookTags"`
}

// DefaultDataset returns the bundled dataset.
func DefaultDataset() (*Dataset, error) {
	return LoadDataset(bytes.NewReader(defaultData))
}

// LoadDatasetFile reads a dataset from a JSON file.
func LoadDatasetFile(path string) (*Dataset, error) {
	f, err := os.Open(path) //#nosec G304 -- seed path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadDataset(f)
}

// LoadDataset decodes and validates a dataset.
func LoadDataset(r io.Reader) (*Dataset, error) {
	var ds Dataset
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "decode seed dataset")
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks labels and pairing positions before anything is written.
func (ds *Dataset) Validate() error {
	for i := range ds.Authors {
		if normalize.Label(ds.Authors[i].Label) == "" {
			return errors.Validationf("seed author %d has a blank label", i+1)
		}
	}
	for i := range ds.Tags {
		if normalize.Label(ds.Tags[i].Label) == "" {
			return errors.Validationf("seed tag %d has a blank label", i+1)
		}
	}
	if err := checkPairs("bookAuthors", ds.BookAuthors, len(ds.Books), len(ds.Authors)); err != nil {
		return err
	}
	return checkPairs("bookTags", ds.BookTags, len(ds.Books), len(ds.Tags))
}

func checkPairs(field string, pairs [][2]int, books, others int) error {
	for i, p := range pairs {
		if p[0] < 1 || p[0] > books {
			return errors.Validationf("%s[%d]: book position %d out of range 1..%d", field, i, p[0], books)
		}
		if p[1] < 1 || p[1] > others {
			return errors.Validationf("%s[%d]: position %d out of range 1..%d", field, i, p[1], others)
		}
	}
	return nil
}

var errAlreadySeeded = errors.New("already seeded")

// EnsureSeeded loads ds unless the seed marker exists. Every row and the
// marker are written in one transaction, so a failure leaves no partial
// dataset behind and the next start tries again. Returns true when ds was
// written by this call.
func EnsureSeeded(ctx context.Context, db *store.DB, ds *Dataset) (bool, error) {
	if err := ds.Validate(); err != nil {
		return false, err
	}
	err := db.Update(ctx, All, func(tx *store.Txn) error {
		markers, err := SeedMarkerTable.In(tx)
		if err != nil {
			return err
		}
		n, err := markers.CountByIndex(IndexExists, domain.SeedMarkerValue)
		if err != nil {
			return err
		}
		if n > 0 {
			return errAlreadySeeded
		}

		if err := insertDataset(tx, ds); err != nil {
			return err
		}

		marker := domain.SeedMarker{Exists: domain.SeedMarkerValue}
		if _, err := SeedMarkerTable.Insert(tx, &marker); err != nil {
			if errors.Is(err, errors.ErrConstraintViolation) {
				return errAlreadySeeded
			}
			return err
		}
		return nil
	})
	if errors.Is(err, errAlreadySeeded) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed default dataset: %w", err)
	}
	return true, nil
}

func insertDataset(tx *store.Txn, ds *Dataset) error {
	bookKeys := make([]int64, len(ds.Books))
	for i := range ds.Books {
		b := ds.Books[i]
		b.ID = 0
		if b.Progress == "" {
			b.Progress = domain.InitialProgress
		}
		key, err := BookTable.Insert(tx, &b)
		if err != nil {
			return fmt.Errorf("seed book %d: %w", i+1, err)
		}
		bookKeys[i] = key
	}

	authorKeys := make([]int64, len(ds.Authors))
	for i := range ds.Authors {
		a := domain.Author{Label: normalize.Label(ds.Authors[i].Label)}
		key, err := AuthorTable.Insert(tx, &a)
		if err != nil {
			return fmt.Errorf("seed author %q: %w", a.Label, err)
		}
		authorKeys[i] = key
	}

	tagKeys := make([]int64, len(ds.Tags))
	for i := range ds.Tags {
		t := domain.Tag{Label: normalize.Label(ds.Tags[i].Label), Color: ds.Tags[i].Color}
		key, err := TagTable.Insert(tx, &t)
		if err != nil {
			return fmt.Errorf("seed tag %q: %w", t.Label, err)
		}
		tagKeys[i] = key
	}

	for _, p := range ds.BookAuthors {
		link := domain.BookAuthor{BookID: bookKeys[p[0]-1], AuthorID: authorKeys[p[1]-1]}
		if _, err := BookAuthorTable.Insert(tx, &link); err != nil {
			return fmt.Errorf("seed book author link: %w", err)
		}
	}
	for _, p := range ds.BookTags {
		link := domain.BookTag{BookID: bookKeys[p[0]-1], TagID: tagKeys[p[1]-1]}
		if _, err := BookTagTable.Insert(tx, &link); err != nil {
			return fmt.Errorf("seed book tag link: %w", err)
		}
	}
	return nil
}
