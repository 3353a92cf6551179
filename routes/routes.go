package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/RemoteKing-Interns/allremotes-sub000/common/middleware"
	"github.com/RemoteKing-Interns/allremotes-sub000/controllers"
)

// Guards are the per-route middleware chains.
type Guards struct {
	Admin  gin.HandlerFunc
	Upload gin.HandlerFunc
}

func RegisterRoutes(r *gin.Engine, uploads *controllers.UploadController, products *controllers.ProductController, guards Guards) {
	admin := guards.Admin
	if admin == nil {
		admin = middleware.AdminAuth("")
	}
	uploadLimit := guards.Upload
	if uploadLimit == nil {
		uploadLimit = func(c *gin.Context) { c.Next() }
	}

	api := r.Group("/api")
	{
		api.GET("/products", products.GetProducts)
	}

	adminRoutes := api.Group("/admin", admin)
	{
		adminRoutes.PUT("/products", products.SaveProducts)

		uploadRoutes := adminRoutes.Group("/upload-products")
		uploadRoutes.POST("", uploadLimit, uploads.UploadProducts)
		uploadRoutes.GET("/template.csv", uploads.DownloadTemplate)
		uploadRoutes.GET("/last", uploads.LastImport)
	}
}
