package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/aiblog/config"
	"github.com/cppla/aiblog/genfile"
	"github.com/cppla/aiblog/models"
	"github.com/cppla/aiblog/routes"
	"github.com/cppla/aiblog/services"
	"github.com/cppla/aiblog/utils"
)

type app struct {
	cfg  *config.AppConfig
	db   *gorm.DB
	deps routes.Deps
}

func setup(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := utils.InitLogger(cfg); err != nil {
		return nil, err
	}
	utils.SetRedis(utils.InitRedis(cfg))

	db, err := config.InitDatabase(cfg, &models.Member{}, &models.Post{}, &models.PostComment{}, &models.PostGenFile{})
	if err != nil {
		return nil, err
	}

	members := services.NewMemberService(db, cfg, services.NewAuthTokenService(cfg))
	genFiles := services.NewGenFileService(db, cfg)
	return &app{
		cfg: cfg,
		db:  db,
		deps: routes.Deps{
			Members:  members,
			Posts:    services.NewPostService(db, members, genFiles),
			Comments: services.NewCommentService(db, members),
			GenFiles: genFiles,
			Stage:    genfile.NewMaterializer(cfg.TempDir, cfg.MaxUploadBytes()),
		},
	}, nil
}

func (a *app) seeder() *services.Seeder {
	return services.NewSeeder(a.deps.Members, a.deps.Posts, a.deps.Comments, a.deps.GenFiles, a.deps.Stage)
}

func (a *app) serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.seeder().Run(ctx, a.cfg.IsProd(), false); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	utils.StartStagingSweeper(ctx, a.cfg.TempDir, time.Duration(a.cfg.StagedFileTTLMinutes)*time.Minute, 5*time.Minute)

	r := routes.SetupRouter(a.cfg, a.deps)
	utils.Sugar.Infof("Starting server on port %s (graceful)", a.cfg.AppPort)
	err := utils.GraceServer(ctx, ":"+a.cfg.AppPort, r, cancel)
	if sqlDB, dbErr := a.db.DB(); dbErr == nil {
		_ = sqlDB.Close()
	}
	_ = utils.Logger.Sync()
	return err
}

func main() {
	var configPath string
	var withFiles bool

	root := &cobra.Command{
		Use:          "aiblog",
		Short:        "Blog API server with post file attachments",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			return a.serve()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.json", "path to the JSON config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  root.RunE,
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an empty database with sample members and posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			if err := a.seeder().Run(cmd.Context(), a.cfg.IsProd(), withFiles); err != nil {
				return err
			}
			utils.Logger.Info("seed finished", zap.Bool("withFiles", withFiles))
			return nil
		},
	}
	seedCmd.Flags().BoolVar(&withFiles, "with-files", false, "download sample attachments")

	root.AddCommand(serveCmd, seedCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
