package utils

import "github.com/gin-gonic/gin"

// Error writes the flat {"error": ...} body the web clients parse.
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	body := gin.H{"error": message}
	if m, ok := data.(map[string]interface{}); ok {
		for k, v := range m {
			body[k] = v
		}
	} else if data != nil {
		body["details"] = data
	}
	c.JSON(code, body)
}
