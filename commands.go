package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/riverfog7/SophonCore/internal"
	"github.com/riverfog7/SophonCore/internal/config"
	"github.com/riverfog7/SophonCore/internal/protos"
)

const defaultField = "game"

// app carries what every command needs: configuration, the API client and the
// chunk fetcher.
type app struct {
	cfg       *config.Config
	api       *internal.SophonHTTPClient
	fetcher   *internal.SophonChunkFetcher
	hashCache *internal.SophonHashCache
}

func newApp(args *Args) (*app, error) {
	var cfg *config.Config
	var err error
	if args.Config != "" {
		cfg, err = config.Load(args.Config)
	} else {
		cfg, err = config.Get()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if args.Edition != "" {
		cfg.Edition = args.Edition
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	edition, err := internal.ParseGameEdition(cfg.Edition)
	if err != nil {
		return nil, err
	}

	// Create HTTP client with connection limits
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: cfg.MaxConnections,
			MaxConnsPerHost:     cfg.MaxConnections,
		},
	}

	fetcher := internal.NewSophonChunkFetcher(client)
	if cfg.SpeedLimit > 0 {
		fetcher.Limiter = internal.NewSpeedLimiter(cfg.SpeedLimit)
	}

	a := &app{
		cfg:     cfg,
		api:     internal.NewSophonHTTPClient(client, edition),
		fetcher: fetcher,
	}

	if !cfg.DisableHashCache {
		a.hashCache, err = internal.OpenHashCache(cfg.HashCachePath)
		if err != nil {
			logrus.WithError(err).Warn("Hash cache disabled")
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.hashCache != nil {
		a.hashCache.Close()
		a.hashCache = nil
	}
}

func (a *app) threads(requested int) int {
	if requested > 0 {
		return requested
	}
	return a.cfg.Threads
}

func fieldsOrDefault(fields []string) []string {
	if len(fields) == 0 {
		return []string{defaultField}
	}
	return fields
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) branch(ctx context.Context, gameId string) (*internal.GameBranchInfo, error) {
	branches, err := a.api.GetGameBranches(ctx)
	if err != nil {
		return nil, err
	}
	branch := branches.GetGameLatestById(gameId)
	if branch == nil {
		return nil, fmt.Errorf("game %s not found", gameId)
	}
	return branch, nil
}

// downloadManifest fetches and validates the manifest of one component.
func (a *app) downloadManifest(ctx context.Context, build *internal.SophonManifestBuildData, field string) (*internal.SophonChunkManifestInfoPair, *protos.SophonManifestProto, error) {
	pair, err := build.InfoPair(field)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := a.api.GetDownloadManifest(ctx, pair.ManifestInfo)
	if err != nil {
		return nil, nil, err
	}
	if err := internal.ValidateManifest(manifest); err != nil {
		return nil, nil, err
	}
	return pair, manifest, nil
}

func (a *app) patchManifest(ctx context.Context, build *internal.SophonManifestPatchData, field string, from internal.Version) (*internal.SophonChunkManifestInfoPair, *protos.SophonPatchProto, error) {
	pair, err := build.InfoPair(field, from)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := a.api.GetPatchManifest(ctx, pair.ManifestInfo)
	if err != nil {
		return nil, nil, err
	}
	if err := internal.ValidatePatchManifest(manifest); err != nil {
		return nil, nil, err
	}
	return pair, manifest, nil
}

type manifestSummary struct {
	MatchingField   string `json:"matching_field"`
	Tag             string `json:"tag"`
	ManifestId      string `json:"manifest_id"`
	ChunkUrlPrefix  string `json:"chunk_url_prefix"`
	Compressed      bool   `json:"compressed"`
	Files           uint64 `json:"files"`
	Chunks          uint64 `json:"chunks"`
	CompressedBytes uint64 `json:"compressed_bytes"`
	UnpackedBytes   uint64 `json:"unpacked_bytes"`
}

func (a *app) ManifestInfoCommand(cmd *ManifestInfoCmd) error {
	ctx, cancel := signalContext()
	defer cancel()

	branch, err := a.branch(ctx, cmd.GameId)
	if err != nil {
		return err
	}
	pkg := &branch.Main
	if cmd.PreDownload {
		if branch.PreDownload == nil {
			return fmt.Errorf("game %s has no pre-download", cmd.GameId)
		}
		pkg = branch.PreDownload
	}

	build, err := a.api.GetBuild(ctx, pkg)
	if err != nil {
		return err
	}

	var summaries []manifestSummary
	for _, identity := range build.ManifestIdentityList {
		pair, manifest, err := a.downloadManifest(ctx, build, identity.MatchingField)
		if err != nil {
			return err
		}
		summaries = append(summaries, manifestSummary{
			MatchingField:   pair.MatchingField,
			Tag:             pair.Tag,
			ManifestId:      pair.ManifestInfo.ManifestId,
			ChunkUrlPrefix:  pair.ChunksInfo.UrlPrefix,
			Compressed:      pair.ChunksInfo.IsUseCompression,
			Files:           manifest.TotalFiles(),
			Chunks:          manifest.TotalChunks(),
			CompressedBytes: manifest.TotalBytesCompressed(),
			UnpackedBytes:   manifest.TotalBytesDecompressed(),
		})
	}

	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return err
	}
	if cmd.OutputPath == "-" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(cmd.OutputPath, data, 0644)
}

func (a *app) InstallCommand(cmd *InstallCmd) error {
	ctx, cancel := signalContext()
	defer cancel()

	branch, err := a.branch(ctx, cmd.GameId)
	if err != nil {
		return err
	}
	version, err := branch.Main.Version()
	if err != nil {
		return err
	}
	build, err := a.api.GetBuild(ctx, &branch.Main)
	if err != nil {
		return err
	}

	for _, field := range fieldsOrDefault(cmd.Fields) {
		pair, manifest, err := a.downloadManifest(ctx, build, field)
		if err != nil {
			return err
		}

		installer := internal.NewSophonInstaller(a.fetcher, manifest, pair.ChunksInfo, a.cfg.TempDir)
		installer.CheckFreeSpace = !a.cfg.SkipFreeSpaceCheck
		installer.HashCache = a.hashCache
		if field == defaultField {
			installer.Version = version
		}

		err = withProgress(ctx, "Installing "+field, func(updater internal.DelegateUpdate) error {
			return installer.Install(ctx, cmd.Path, a.threads(cmd.Threads), updater)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) PreDownloadCommand(cmd *PreDownloadCmd) error {
	ctx, cancel := signalContext()
	defer cancel()

	branch, err := a.branch(ctx, cmd.GameId)
	if err != nil {
		return err
	}
	if branch.PreDownload == nil {
		return fmt.Errorf("game %s has no pre-download", cmd.GameId)
	}

	if cmd.From == "" {
		build, err := a.api.GetBuild(ctx, branch.PreDownload)
		if err != nil {
			return err
		}
		for _, field := range fieldsOrDefault(cmd.Fields) {
			pair, manifest, err := a.downloadManifest(ctx, build, field)
			if err != nil {
				return err
			}
			installer := internal.NewSophonInstaller(a.fetcher, manifest, pair.ChunksInfo, a.cfg.TempDir)
			installer.CheckFreeSpace = !a.cfg.SkipFreeSpaceCheck
			err = withProgress(ctx, "Pre-downloading "+field, func(updater internal.DelegateUpdate) error {
				return installer.PreDownload(ctx, a.threads(cmd.Threads), updater)
			})
			if err != nil {
				return err
			}
		}
		return nil
	}

	from, err := internal.ParseVersion(cmd.From)
	if err != nil {
		return err
	}
	build, err := a.api.GetPatchBuild(ctx, branch.PreDownload)
	if err != nil {
		return err
	}
	for _, field := range fieldsOrDefault(cmd.Fields) {
		pair, manifest, err := a.patchManifest(ctx, build, field, from)
		if err != nil {
			return err
		}
		patcher := internal.NewSophonPatcher(a.fetcher, manifest, pair.ChunksInfo, a.cfg.TempDir, internal.NewHpatchz(a.cfg.HPatchzPath))
		patcher.CheckFreeSpace = !a.cfg.SkipFreeSpaceCheck
		err = withProgress(ctx, "Pre-downloading "+field, func(updater internal.DelegateUpdate) error {
			return patcher.PreDownload(ctx, from, a.threads(cmd.Threads), updater)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) UpdateCommand(cmd *UpdateCmd) error {
	ctx, cancel := signalContext()
	defer cancel()

	var from internal.Version
	var err error
	if cmd.From != "" {
		from, err = internal.ParseVersion(cmd.From)
	} else {
		from, err = internal.ReadVersionFile(cmd.Path)
	}
	if err != nil {
		return fmt.Errorf("failed to determine installed version: %w", err)
	}

	branch, err := a.branch(ctx, cmd.GameId)
	if err != nil {
		return err
	}
	target, err := branch.Main.Version()
	if err != nil {
		return err
	}
	if !from.Less(target) {
		fmt.Printf("Already up to date (%s)\n", from)
		return nil
	}

	build, err := a.api.GetPatchBuild(ctx, &branch.Main)
	if err != nil {
		return err
	}

	for _, field := range fieldsOrDefault(cmd.Fields) {
		pair, manifest, err := a.patchManifest(ctx, build, field, from)
		if err != nil {
			return err
		}

		patcher := internal.NewSophonPatcher(a.fetcher, manifest, pair.ChunksInfo, a.cfg.TempDir, internal.NewHpatchz(a.cfg.HPatchzPath))
		patcher.CheckFreeSpace = !a.cfg.SkipFreeSpaceCheck
		patcher.HashCache = a.hashCache
		if field == defaultField {
			patcher.Version = target
		}

		err = withProgress(ctx, fmt.Sprintf("Updating %s %s -> %s", field, from, target), func(updater internal.DelegateUpdate) error {
			return patcher.Patch(ctx, cmd.Path, from, a.threads(cmd.Threads), updater)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) RepairCommand(cmd *RepairCmd) error {
	ctx, cancel := signalContext()
	defer cancel()

	branches, err := a.api.GetGameBranches(ctx)
	if err != nil {
		return err
	}

	branch := branches.GetGameLatestById(cmd.GameId)
	if installed, err := internal.ReadVersionFile(cmd.Path); err == nil {
		if match := branches.GetGameById(cmd.GameId, installed); match != nil {
			branch = match
		}
	}
	if branch == nil {
		return fmt.Errorf("game %s not found", cmd.GameId)
	}

	build, err := a.api.GetBuild(ctx, &branch.Main)
	if err != nil {
		return err
	}

	var targets []internal.SophonRepairTarget
	for _, field := range fieldsOrDefault(cmd.Fields) {
		pair, manifest, err := a.downloadManifest(ctx, build, field)
		if err != nil {
			return err
		}
		targets = append(targets, internal.SophonRepairTarget{Manifest: manifest, ChunksInfo: pair.ChunksInfo})
	}

	repairer := internal.NewSophonRepairer(a.fetcher, a.cfg.TempDir, targets...)
	repairer.HashCache = a.hashCache
	return withProgress(ctx, "Repairing", func(updater internal.DelegateUpdate) error {
		return repairer.CheckAndRepair(ctx, cmd.Path, a.threads(cmd.Threads), updater)
	})
}

// withProgress runs a pipeline and prints its progress until it returns.
func withProgress(ctx context.Context, label string, run func(updater internal.DelegateUpdate) error) error {
	updates := make(chan internal.Update, 256)
	printer := newProgressPrinter(label)

	done := make(chan struct{})
	go func() {
		printer.consume(updates)
		close(done)
	}()

	err := run(internal.ChannelUpdater(ctx, updates))
	close(updates)
	<-done
	return err
}

// progressPrinter renders pipeline events as a single status line. Counters
// are kept as running maxima since events from workers may arrive out of order.
type progressPrinter struct {
	label string
	start time.Time

	phase      string
	bytesDone  uint64
	bytesTotal uint64
	done       uint64
	total      uint64
	errors     int
}

func newProgressPrinter(label string) *progressPrinter {
	return &progressPrinter{label: label, start: time.Now(), phase: "Preparing"}
}

func (p *progressPrinter) consume(updates <-chan internal.Update) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				p.print()
				fmt.Printf("\n%s finished in %s with %d errors\n", p.label, time.Since(p.start).Round(time.Second), p.errors)
				return
			}
			p.apply(update)
		case <-ticker.C:
			p.print()
		}
	}
}

func (p *progressPrinter) counter(phase string, done, total uint64) {
	if p.phase != phase {
		p.phase, p.done = phase, 0
	}
	p.done = max(p.done, done)
	p.total = total
}

func (p *progressPrinter) apply(update internal.Update) {
	switch u := update.(type) {
	case internal.CheckingFreeSpace:
		p.phase = "Checking free space"
	case internal.DownloadingStarted:
		p.phase = "Downloading"
	case internal.DownloadingProgressBytes:
		p.bytesDone = max(p.bytesDone, u.Downloaded)
		p.bytesTotal = u.Total
	case internal.DownloadingProgressFiles:
		p.counter("Downloading", u.Downloaded, u.Total)
	case internal.PatchingProgress:
		p.counter("Patching", u.Patched, u.Total)
	case internal.DeletingProgress:
		logrus.Debugf("Deleted %d/%d unused files", u.Deleted, u.Total)
	case internal.VerifyingProgress:
		p.counter("Verifying", u.Checked, u.Total)
	case internal.VerifyingFinished:
		fmt.Printf("\n%d broken files\n", u.Broken)
	case internal.RepairingProgress:
		p.counter("Repairing", u.Repaired, u.Total)
	case internal.FileHashCheckFailed:
		fmt.Printf("\nHash check failed: %s\n", u.Path)
	case internal.DownloadingError:
		p.errors++
		fmt.Printf("\nError: %v\n", u.Err)
	case internal.PatchingError:
		p.errors++
		fmt.Printf("\nError: %v\n", u.Err)
	}
}

func (p *progressPrinter) print() {
	elapsed := time.Since(p.start).Seconds()
	speed := uint64(0)
	if elapsed > 0 {
		speed = uint64(float64(p.bytesDone) / elapsed)
	}

	fmt.Printf("\r%s | %s %d/%d | %s/%s (%s/s)    ",
		p.label,
		p.phase, p.done, p.total,
		internal.PrettifyBytes(p.bytesDone),
		internal.PrettifyBytes(p.bytesTotal),
		internal.PrettifyBytes(speed),
	)
}
