// Command aligncheck runs a multi-logo alignment check on a captured platen
// image and prints a per-logo report.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"alignpress/internal/configstore"
	"alignpress/internal/job"
	"alignpress/internal/pipeline"
	"alignpress/internal/preset"
	"alignpress/internal/version"
	"alignpress/pkg/geometry"
)

func main() {
	platenPath := flag.String("platen", "", "Path to platen profile (json/yaml)")
	stylePath := flag.String("style", "", "Path to style definition (json/yaml)")
	variantPath := flag.String("variant", "", "Path to size variant (optional)")
	imagePath := flag.String("image", "", "Path to captured platen image")
	jobDir := flag.String("jobs", "", "Directory for job cards (optional)")
	workers := flag.Int("workers", 1, "Number of parallel detection workers")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("aligncheck %s (%s)\n", version.Version, version.GitCommit)
		return
	}

	if *platenPath == "" || *stylePath == "" || *imagePath == "" {
		fmt.Println("Usage: aligncheck -platen <file> -style <file> -image <file> [-variant <file>] [-jobs <dir>]")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	profile, err := configstore.LoadPlaten(*platenPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load platen: %v\n", err)
		os.Exit(1)
	}

	style, err := configstore.LoadStyle(*stylePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load style: %v\n", err)
		os.Exit(1)
	}

	var variant *preset.SizeVariant
	if *variantPath != "" {
		variant, err = configstore.LoadVariant(*variantPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load variant: %v\n", err)
			os.Exit(1)
		}
	}

	comp, err := preset.Compose(style, variant, &profile.Calibration, preset.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Composition failed: %v\n", err)
		os.Exit(1)
	}
	for _, w := range comp.Warnings {
		fmt.Printf("WARNING: %s\n", w)
	}

	img, err := loadImage(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}

	frame, err := pipeline.ImageToMat(img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to convert image: %v\n", err)
		os.Exit(1)
	}
	defer frame.Close()

	p := pipeline.New()
	p.Workers = *workers
	p.Logger = logger
	result, err := p.Run(comp.Tasks, frame, &profile.Calibration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline failed: %v\n", err)
		os.Exit(1)
	}

	printReport(result)

	if *jobDir != "" {
		variantID := ""
		if variant != nil {
			variantID = variant.ID
		}
		card := job.NewCard(profile.Name, style.ID, variantID, result)
		path, err := card.Save(*jobDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save job card: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nJob card: %s\n", path)
	}

	if !result.OverallSuccess {
		os.Exit(2)
	}
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func printReport(result *pipeline.MultiLogoResult) {
	fmt.Printf("\n=== Alignment report ===\n")
	for _, r := range result.Results {
		switch r.Status {
		case pipeline.StatusNotFound:
			fmt.Printf("  %-16s NOT FOUND\n", r.TaskID)
		default:
			mark := "OK "
			if r.Status == pipeline.StatusOutOfTolerance {
				mark = "OUT"
			}
			theta := "-"
			if r.RotationEstimated {
				theta = fmt.Sprintf("%+.2f°", geometry.RadToDeg(r.Error.Theta))
			}
			fmt.Printf("  %-16s %s  dx=%+.2fmm dy=%+.2fmm dθ=%s conf=%.2f\n",
				r.TaskID, mark, r.Error.X, r.Error.Y, theta, r.Confidence)
		}
	}
	fmt.Printf("\nOverall: ")
	if result.OverallSuccess {
		fmt.Printf("PASS")
	} else {
		fmt.Printf("FAIL")
	}
	fmt.Printf("  (mean confidence %.2f)\n", result.MeanConfidence)
}
