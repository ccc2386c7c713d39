package httpserver

import (
	"net/http"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/profile"
	"coffeehouse/internal/storefront"
	"coffeehouse/internal/validation"
	"github.com/gin-gonic/gin"
)

type favoritesResponse struct {
	ItemIDs []int64 `json:"itemIds"`
}

type favoriteResponse struct {
	ItemID   int64 `json:"itemId"`
	Favorite bool  `json:"favorite"`
}

// currentIdentity reads the signed-in identity of the requesting device.
func (h *handlers) currentIdentity(c *gin.Context) (*domain.Identity, bool) {
	var id *domain.Identity
	if !h.withClient(c, func(client *storefront.Client) error {
		id = client.Session.Current()
		return nil
	}) {
		return nil, false
	}
	return id, true
}

func (h *handlers) requireIdentity(c *gin.Context) (*domain.Identity, bool) {
	id, ok := h.currentIdentity(c)
	if !ok {
		return nil, false
	}
	if id == nil {
		writeError(c, h.logger, domain.ErrNotAuthenticated)
		return nil, false
	}
	return id, true
}

func (h *handlers) getProfile(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	p, err := h.deps.Profiles.Get(c.Request.Context(), id.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) updateProfile(c *gin.Context) {
	id, ok := h.requireIdentity(c)
	if !ok {
		return
	}
	var req profile.Update
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	p, err := h.deps.Profiles.Update(c.Request.Context(), id.ID, req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *handlers) listFavorites(c *gin.Context) {
	var ids []int64
	if h.withClient(c, func(client *storefront.Client) error {
		var err error
		ids, err = client.Favorites.List(c.Request.Context())
		return err
	}) {
		if ids == nil {
			ids = []int64{}
		}
		c.JSON(http.StatusOK, favoritesResponse{ItemIDs: ids})
	}
}

func (h *handlers) addFavorite(c *gin.Context) {
	h.updateFavorite(c, func(client *storefront.Client, itemID int64) (bool, error) {
		return true, client.Favorites.Add(c.Request.Context(), itemID)
	})
}

func (h *handlers) removeFavorite(c *gin.Context) {
	h.updateFavorite(c, func(client *storefront.Client, itemID int64) (bool, error) {
		return false, client.Favorites.Remove(c.Request.Context(), itemID)
	})
}

func (h *handlers) toggleFavorite(c *gin.Context) {
	h.updateFavorite(c, func(client *storefront.Client, itemID int64) (bool, error) {
		return client.Favorites.Toggle(c.Request.Context(), itemID)
	})
}

func (h *handlers) updateFavorite(c *gin.Context, fn func(*storefront.Client, int64) (bool, error)) {
	itemID, err := itemIDParam(c)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var fav bool
	if h.withClient(c, func(client *storefront.Client) error {
		var err error
		fav, err = fn(client, itemID)
		return err
	}) {
		c.JSON(http.StatusOK, favoriteResponse{ItemID: itemID, Favorite: fav})
	}
}
