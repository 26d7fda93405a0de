package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/bookshelf/internal/config"
	"github.com/listenupapp/bookshelf/internal/logger"
	"github.com/listenupapp/bookshelf/internal/service"
)

// ProvideLibrary provides the shared repository set and write coordinator.
func ProvideLibrary(i do.Injector) (*service.Library, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	log := do.MustInvoke[*logger.Logger](i)

	policy := service.OrphanPolicy{
		Authors: cfg.Orphans.PruneAuthors,
		Tags:    cfg.Orphans.PruneTags,
	}

	return service.NewLibrary(storeHandle.DB, searchService, policy, log.Logger), nil
}

// ProvideBookService provides the book service.
func ProvideBookService(i do.Injector) (*service.BookService, error) {
	return service.NewBookService(do.MustInvoke[*service.Library](i)), nil
}

// ProvideAuthorService provides the author service.
func ProvideAuthorService(i do.Injector) (*service.AuthorService, error) {
	return service.NewAuthorService(do.MustInvoke[*service.Library](i)), nil
}

// ProvideTagService provides the tag service.
func ProvideTagService(i do.Injector) (*service.TagService, error) {
	return service.NewTagService(do.MustInvoke[*service.Library](i)), nil
}
