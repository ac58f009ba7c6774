package main

import (
	"time"

	"github.com/cppla/goboard/board"
	"github.com/cppla/goboard/config"
	"github.com/cppla/goboard/models"
	"github.com/cppla/goboard/routes"
	"github.com/cppla/goboard/store"
	"github.com/cppla/goboard/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	var st store.Store
	switch cfg.StorageBackend {
	case "file":
		fs, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			utils.Sugar.Fatalf("file store init failed: %v", err)
		}
		st = fs
	default:
		db := config.InitDatabase(&models.User{}, &models.Post{}, &models.Reply{}, &models.PostLike{})
		st = store.NewSQLStore(db)
	}
	defer st.Close()

	svc := board.NewService(st, cfg.StaticRoot, utils.Sugar)

	r := routes.SetupRouter(svc)

	// Reclaim upload files no record references anymore (best-effort)
	board.StartOrphanSweeper(st, cfg.StaticRoot, cfg.UploadDir, 30*time.Minute)

	utils.Sugar.Infof("Starting server on port %s (backend=%s, graceful)", cfg.AppPort, cfg.StorageBackend)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
