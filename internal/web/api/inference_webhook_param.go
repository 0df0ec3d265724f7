package api

// InferenceObject 单个检测目标
type InferenceObject struct {
	Class      string    `json:"class"`
	ID         int       `json:"id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// InferenceResult 单个算法的检测结果
type InferenceResult struct {
	Algorithm string            `json:"algorithm" binding:"required"`
	Score     float64           `json:"score"`
	Threshold float64           `json:"threshold"`
	Triggered bool              `json:"triggered"`
	Objects   []InferenceObject `json:"objects"`
}

// InferenceCallbackInput 推理回调请求体
type InferenceCallbackInput struct {
	CameraID    string            `json:"camera_id"`
	Timestamp   float64           `json:"timestamp"` // 秒，毫秒精度
	ImageBase64 string            `json:"image_base64"`
	Results     []InferenceResult `json:"results"`
	Extra       map[string]any    `json:"extra"`
}

// InferenceCallbackOutput 推理回调响应
type InferenceCallbackOutput struct {
	AlarmID string `json:"alarm_id"`
	Msg     string `json:"msg"`
}
