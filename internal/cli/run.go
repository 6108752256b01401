package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"dubbing-service/ddd/application/app"
	"dubbing-service/ddd/application/cqe"
	"dubbing-service/ddd/infrastructure/container"
	"dubbing-service/ddd/infrastructure/queue"
	"dubbing-service/pkg/config"
	"dubbing-service/pkg/logger"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <input>",
		Short: "Dub a local video once, without MySQL, Redis or MinIO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd, args[0])
		},
	}
	cmd.Flags().StringSlice("to", nil, "Target languages, e.g. --to hi,ta")
	cmd.Flags().String("from", "auto", "Source language")
	cmd.Flags().String("voice", "", "Voice gender: male, female or auto")
	cmd.Flags().String("work-dir", ".dubbing", "Directory holding uploads and outputs")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runLocal(cmd *cobra.Command, input string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	to, _ := cmd.Flags().GetStringSlice("to")
	from, _ := cmd.Flags().GetString("from")
	voice, _ := cmd.Flags().GetString("voice")
	workDir, _ := cmd.Flags().GetString("work-dir")

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	if _, err := os.Stat(absIn); err != nil {
		return fmt.Errorf("input: %w", err)
	}

	// 本地模式：文件存储 + 内存仓储，不依赖外部资源
	cfg.Storage.Driver = "local"
	cfg.Storage.LocalDir = workDir
	config.SetGlobalConfig(cfg)
	logger.SetGlobalLogger(logger.NewLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	key := "uploads/" + filepath.Base(absIn)
	if _, err := c.Storage.PutFile(ctx, absIn, key); err != nil {
		return fmt.Errorf("stage input: %w", err)
	}

	q := queue.NewMemoryJobQueue(1)
	defer q.Close()
	dubbing := app.NewDubbingAppWith(app.DubbingAppDeps{
		Repo:               c.Repo,
		Queue:              q,
		Cancels:            c.Cancels,
		Storage:            c.Storage,
		Pairs:              c.Pairs,
		SupportedLanguages: cfg.Pipeline.SupportedLanguages,
		PresignTTL:         cfg.Minio.PresignTTL,
	})

	job, err := dubbing.SubmitJob(ctx, &cqe.SubmitJobReq{
		MediaKey:        key,
		SourceLanguage:  from,
		TargetLanguages: to,
		VoiceGender:     voice,
	})
	if err != nil {
		return err
	}
	jobID, err := q.Dequeue(ctx)
	if err != nil {
		return err
	}
	if err := c.Pipeline.Run(ctx, jobID); err != nil {
		logger.Warnf("Pipeline finished with error job_id=%s error=%v", job.JobID, err)
	}

	out, err := dubbing.GetJob(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
