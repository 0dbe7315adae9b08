package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/middleware"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	appErrors "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorID(c *gin.Context) int64 {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return 0
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
