package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"calltree/internal/analyzer"
	"calltree/internal/config"
	"calltree/internal/database"
	"calltree/internal/models"
)

// TaskState represents the current state of an analysis task
type TaskState string

const (
	TaskStatePending  TaskState = "pending"
	TaskStateRunning  TaskState = "running"
	TaskStateComplete TaskState = "complete"
	TaskStateErrored  TaskState = "errored"
)

// AnalysisRequest is the POST /v1/analysis body
type AnalysisRequest struct {
	Function string `json:"function" binding:"required"`
	MaxDepth int    `json:"max_depth"`
}

// AnalysisTask represents a task and its state
type AnalysisTask struct {
	TaskID    string                 `json:"task_id"`
	Function  string                 `json:"function"`
	MaxDepth  int                    `json:"max_depth"`
	Result    *models.AnalysisResult `json:"result,omitempty"`
	State     TaskState              `json:"state"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt int64                  `json:"created_at"`
}

// AnalysisService manages the analysis tasks
type AnalysisService struct {
	db         *database.Database
	tasks      map[string]*AnalysisTask
	tasksMutex sync.RWMutex
}

// NewAnalysisService creates a new analysis service over a built database
func NewAnalysisService(db *database.Database) *AnalysisService {
	return &AnalysisService{
		db:    db,
		tasks: make(map[string]*AnalysisTask),
	}
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	sourceDir := os.Getenv("SOURCE_DIR")
	if sourceDir == "" {
		sourceDir = "."
	}

	var moduleConfig *config.ModuleConfig
	if path := os.Getenv("MODULE_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatalf("Failed to load module config: %v", err)
		}
		moduleConfig = cfg
	}

	// Build the function database once at startup
	db := database.New(sourceDir, moduleConfig, os.Getenv("CACHE_DIR"))
	if err := db.Build(database.BuildOptions{UseCache: true}); err != nil {
		log.Fatalf("Failed to build function database: %v", err)
	}
	stats := db.GetStatistics()
	log.Printf("Function database ready: %d files, %d functions", stats.TotalFilesScanned, stats.TotalFunctionsFound)

	analysisService := NewAnalysisService(db)

	// Get port from environment with fallback
	port := os.Getenv("PORT")
	if port == "" {
		port = "7082"
	}

	r := gin.Default()

	// Setup routes
	r.GET("/v1/health", handleHealth)
	r.POST("/v1/analysis", func(c *gin.Context) {
		handleAnalysis(c, analysisService)
	})
	r.GET("/v1/analysis/:taskID", func(c *gin.Context) {
		handleGetAnalysis(c, analysisService)
	})
	r.GET("/v1/functions", func(c *gin.Context) {
		handleSearchFunctions(c, analysisService)
	})

	// Start the server
	log.Printf("Starting call tree service on port %s...", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func handleAnalysis(c *gin.Context, service *AnalysisService) {
	var request AnalysisRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Invalid JSON request: " + err.Error(),
		})
		return
	}
	if request.MaxDepth <= 0 {
		request.MaxDepth = 3
	}

	log.Printf("Received analysis request for function: %s (max depth %d)", request.Function, request.MaxDepth)

	task := &AnalysisTask{
		TaskID:    uuid.New().String(),
		Function:  request.Function,
		MaxDepth:  request.MaxDepth,
		State:     TaskStatePending,
		CreatedAt: time.Now().Unix(),
	}
	service.tasksMutex.Lock()
	service.tasks[task.TaskID] = task
	service.tasksMutex.Unlock()

	go service.runAnalysis(task.TaskID)

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"task_id": task.TaskID,
	})
}

func (s *AnalysisService) runAnalysis(taskID string) {
	s.tasksMutex.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.tasksMutex.Unlock()
		return
	}
	task.State = TaskStateRunning
	function, maxDepth := task.Function, task.MaxDepth
	s.tasksMutex.Unlock()

	// Each task gets its own builder; builders are not safe for
	// concurrent use.
	builder := analyzer.NewCallTreeBuilder(s.db)
	result, err := builder.BuildTree(function, maxDepth, false)

	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	switch {
	case err != nil:
		task.State = TaskStateErrored
		task.Error = err.Error()
	case result.CallTree == nil:
		task.State = TaskStateErrored
		task.Result = result
		if len(result.Errors) > 0 {
			task.Error = result.Errors[0]
		}
	default:
		task.State = TaskStateComplete
		task.Result = result
	}
}

func handleGetAnalysis(c *gin.Context, service *AnalysisService) {
	taskID := c.Param("taskID")

	service.tasksMutex.RLock()
	task, ok := service.tasks[taskID]
	var snapshot AnalysisTask
	if ok {
		snapshot = *task
	}
	service.tasksMutex.RUnlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  "error",
			"message": fmt.Sprintf("Unknown task ID: %v", taskID),
		})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func handleSearchFunctions(c *gin.Context, service *AnalysisService) {
	pattern := c.Query("q")
	matches := service.db.Search(pattern)

	type functionSummary struct {
		Name       string `json:"name"`
		FilePath   string `json:"file_path"`
		LineNumber int    `json:"line_number"`
		SwModule   string `json:"sw_module,omitempty"`
	}
	summaries := make([]functionSummary, 0, len(matches))
	for _, fn := range matches {
		summaries = append(summaries, functionSummary{
			Name:       fn.Name,
			FilePath:   fn.FilePath,
			LineNumber: fn.LineNumber,
			SwModule:   fn.SwModule,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"count":     len(summaries),
		"functions": summaries,
	})
}
