package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"melodex"
	"melodex/internal/build"
	"melodex/internal/match"
	"melodex/internal/store"
	"melodex/pkg/logger"
)

// Global flags
var (
	dbPath   string
	songsDir string
	workers  int
)

func init() {
	godotenv.Load()

	flag.StringVar(&dbPath, "db", getEnvOrDefault("MELODEX_DB_PATH", store.DefaultDBFile), "Path to the SQLite database file")
	flag.StringVar(&songsDir, "songs", getEnvOrDefault("MELODEX_SONGS_DIR", "songs"), "Directory of songs to index")
	flag.IntVar(&workers, "workers", getEnvOrDefaultInt("MELODEX_WORKERS", 0), "Extraction worker count (0 = auto)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func createService() (melodex.Service, error) {
	return melodex.NewService(
		melodex.WithDBPath(dbPath),
		melodex.WithWorkers(workers),
	)
}

func main() {
	log := logger.GetLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	flag.CommandLine.Parse(os.Args[2:])
	log.Infof("Executing command: %s", command)

	switch command {
	case "build":
		handleBuild()
	case "recognize":
		handleRecognize()
	case "list":
		handleList()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// buildDir resolves the directory to index: a positional argument overrides
// the --songs flag (itself backed by MELODEX_SONGS_DIR).
func buildDir() string {
	if dir := flag.Arg(0); dir != "" {
		return dir
	}
	return songsDir
}

func handleBuild() {
	log := logger.GetLogger()

	dir := buildDir()

	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	fmt.Printf("🎵 Building song database from %s\n", dir)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := svc.BuildDatabase(ctx, dir)
	if err != nil {
		if errors.Is(err, build.ErrNothingIndexed) && report != nil {
			fmt.Println("\n❌ No song could be indexed, database left unchanged:")
			for _, skip := range report.Skipped {
				fmt.Printf("   %s: %v\n", skip.Filename, skip.Reason)
			}
		} else {
			fmt.Printf("\n❌ Build failed: %v\n", err)
		}
		log.Errorf("BuildDatabase failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ %s\n", report.Summary())
	for _, skip := range report.Skipped {
		fmt.Printf("   ⚠️  skipped %s: %v\n", skip.Filename, skip.Reason)
	}
}

func handleRecognize() {
	log := logger.GetLogger()

	audioPath := flag.Arg(0)
	if audioPath == "" {
		fmt.Println("Usage: melodex recognize [flags] <audio_file>")
		os.Exit(1)
	}
	log.Infof("Recognizing audio file: %s", audioPath)

	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	fmt.Println("🔍 Analyzing audio clip...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := svc.Recognize(ctx, audioPath)
	if err != nil {
		if errors.Is(err, match.ErrNoFeatures) {
			fmt.Println("\n❌ Could not extract any features from the clip (too short or unreadable)")
		} else {
			fmt.Printf("\n❌ Recognition failed: %v\n", err)
		}
		log.Errorf("Recognize failed: %v", err)
		os.Exit(1)
	}

	printResult(result)
	log.Infof("Recognition complete: verdict=%s", result.Verdict)
}

func printResult(result *match.Result) {
	if result.Verdict == match.VerdictCertain {
		best := result.Best()
		fmt.Printf("\n✅ Match: \"%s\"\n", best.Song.Filename)
		fmt.Printf("   Confidence: %.4f | Margin: %.4f | Segments used: %d\n",
			best.Score, result.Margin, result.SegmentsUsed)
		return
	}

	fmt.Println("\n🤔 Ambiguous match, closest candidates:")
	for i, c := range result.Candidates {
		fmt.Printf("%d. \"%s\" (score: %.4f)\n", i+1, c.Song.Filename, c.Score)
	}
	// With a single candidate there is no runner-up and no margin to report.
	if len(result.Candidates) >= 2 {
		fmt.Printf("   Margin: %.4f | Segments used: %d\n", result.Margin, result.SegmentsUsed)
	} else {
		fmt.Printf("   Segments used: %d\n", result.SegmentsUsed)
	}
}

func handleList() {
	log := logger.GetLogger()

	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	songs, err := svc.ListSongs()
	if err != nil {
		fmt.Printf("❌ Failed to list songs: %v\n", err)
		log.Errorf("ListSongs failed: %v", err)
		os.Exit(1)
	}

	if len(songs) == 0 {
		fmt.Println("\n📭 No songs in database")
		return
	}

	fmt.Printf("\n📚 %d song(s) in database:\n\n", len(songs))
	for _, song := range songs {
		fmt.Printf("%4d. %s\n", song.ID, song.Filename)
	}
	log.Infof("Listed %d songs", len(songs))
}

func printUsage() {
	fmt.Println("melodex - Audio Clip Recognition CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Printf("  --db <path>        Path to SQLite database (env: MELODEX_DB_PATH, default: %s)\n", store.DefaultDBFile)
	fmt.Println("  --songs <dir>      Directory of songs to index (env: MELODEX_SONGS_DIR, default: songs)")
	fmt.Println("  --workers <n>      Extraction worker count (env: MELODEX_WORKERS, default: auto)")
	fmt.Println("\nUsage:")
	fmt.Println("  melodex build [flags] [songs_dir]       Index every song in a directory")
	fmt.Println("  melodex recognize [flags] <audio_file>  Identify which indexed song a clip comes from")
	fmt.Println("  melodex list [flags]                    Show indexed songs")
}
