package coach_routers

import (
	capture_api "github.com/coachlyai/api/coach-api/api/capture"
	internal_capture "github.com/coachlyai/api/coach-api/internal/capture"
	internal_media "github.com/coachlyai/api/coach-api/internal/media"
	internal_realtime "github.com/coachlyai/api/coach-api/internal/realtime"
	internal_store "github.com/coachlyai/api/coach-api/internal/store"
	"github.com/coachlyai/config"
	"github.com/coachlyai/pkg/commons"
	"github.com/gin-gonic/gin"
)

func CaptureApiRoute(
	cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger,
	pipeline *internal_capture.Pipeline,
	broker *internal_media.Broker,
	store internal_store.Store,
	cache internal_store.MessageCache,
	hub *internal_realtime.Hub,
) {
	captureRpcApi := capture_api.NewCaptureApi(cfg, logger, pipeline, broker, store, cache, hub)

	apiv1 := engine.Group("v1/capture")
	{
		// permission acquisition ahead of recording
		apiv1.POST("/microphone", captureRpcApi.RequestMicrophone)
		apiv1.POST("/system", captureRpcApi.RequestSystemAudio)

		apiv1.POST("/start", captureRpcApi.StartCapture)
		apiv1.POST("/stop", captureRpcApi.StopCapture)
		apiv1.GET("/status", captureRpcApi.GetStatus)
	}

	coachingv1 := engine.Group("v1/coaching")
	{
		coachingv1.GET("/messages", captureRpcApi.GetMessages)
		coachingv1.GET("/stream", captureRpcApi.StreamMessages)
	}
}
