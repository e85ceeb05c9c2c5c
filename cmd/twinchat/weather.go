package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/twinchat/llm/tools"
)

// 固定的演示数据，键为小写城市名
var knownWeather = map[string]string{
	"moscow":           "Moscow: +5°C, cloudy",
	"москва":           "Moscow: +5°C, cloudy",
	"saint petersburg": "Saint Petersburg: +3°C, rainy",
	"st. petersburg":   "Saint Petersburg: +3°C, rainy",
	"санкт-петербург":  "Saint Petersburg: +3°C, rainy",
	"novosibirsk":      "Novosibirsk: -2°C, snow",
	"новосибирск":      "Novosibirsk: -2°C, snow",
}

func getWeather(_ context.Context, city string) (string, error) {
	city = strings.TrimSpace(city)
	if w, ok := knownWeather[strings.ToLower(city)]; ok {
		return w, nil
	}
	return fmt.Sprintf("%s: +10°C, clear", city), nil
}

func weatherTool() tools.ToolDefinition {
	return tools.NewLocalTool(
		"get_weather",
		"Get the current weather for a city.",
		"city",
		"City name, e.g. Moscow",
		getWeather,
	)
}
