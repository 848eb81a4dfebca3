package main

import (
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/config"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/detections"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/history"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/inference"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/pipeline"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/yield"
)

func main() {
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	state := &AppState{
		Cfg: cfg,
		Log: log,
	}

	if cfg.HistoryPath != "" {
		state.History = history.NewFileStore(cfg.HistoryPath)
	} else {
		state.History = history.NewMemStore()
	}

	if cfg.RemoteDetectURL != "" {
		log.Infof("using remote inference runtime at %s", cfg.RemoteDetectURL)
		state.Analyzer = inference.NewRemoteAnalyzer(cfg.RemoteDetectURL, cfg.InferTimeout)
	} else {
		if cfg.OrtLibPath != "" {
			ort.SetSharedLibraryPath(cfg.OrtLibPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			log.Fatalf("Failed to initialize ONNX environment: %v", err)
		}
		defer ort.DestroyEnvironment()

		detectorPool, err := inference.NewSessionPool(func() (*inference.Session, error) {
			return inference.NewSession(inference.SessionConfig{
				ModelPath:   cfg.DetectorModelPath,
				InputName:   "images",
				OutputName:  "output0",
				InputShape:  []int64{1, 3, detections.InputSize, detections.InputSize},
				OutputShape: []int64{1, int64(4 + cfg.NumClasses), detections.NumPredictions},
			})
		}, cfg.PoolSize)
		if err != nil {
			log.Fatalf("Failed to create detector session pool: %v", err)
		}
		defer detectorPool.Destroy()

		classifierPool, err := inference.NewSessionPool(func() (*inference.Session, error) {
			return inference.NewSession(inference.SessionConfig{
				ModelPath:   cfg.ClassifierModelPath,
				InputName:   "input",
				OutputName:  "output",
				InputShape:  []int64{1, 3, yield.InputSize, yield.InputSize},
				OutputShape: []int64{1, 1},
			})
		}, cfg.PoolSize)
		if err != nil {
			log.Fatalf("Failed to create classifier session pool: %v", err)
		}
		defer classifierPool.Destroy()

		var posts []detections.Postprocessor
		if cfg.MinBoxSide > 0 || cfg.MinBoxArea > 0 {
			posts = append(posts, detections.NewMinSizeFilter(cfg.MinBoxSide, cfg.MinBoxArea))
		}

		state.DetectorPool = detectorPool
		state.ClassifierPool = classifierPool
		state.Analyzer = pipeline.New(
			&inference.PooledEngine{Pool: detectorPool},
			&inference.PooledEngine{Pool: classifierPool},
			pipeline.Config{
				ConfThreshold:  cfg.ConfThreshold,
				IoUThreshold:   cfg.IoUThreshold,
				InferTimeout:   cfg.InferTimeout,
				Postprocessors: posts,
			},
			log,
		)
	}

	r := mux.NewRouter()
	state.addRoutes(r)

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	log.Infof("Starting server on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}
