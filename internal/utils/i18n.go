package utils

// Minimal server-side i18n for fixed keys.
// UI strings should live in the frontend; server provides only essentials.

var translations = map[string]map[string]string{
	"en": {
		"health.ok":               "ok",
		"error.invalid":           "The request is invalid",
		"error.unknown_slot":      "The answer does not match any question of this survey",
		"error.already_submitted": "This survey has already been submitted",
		"error.forbidden":         "You are not allowed to do this",
		"error.not_found":         "Not found",
		"error.conflict":          "This already exists",
		"error.unauthorized":      "Please sign in",
		"error.fields":            "Some answers could not be saved",
		"error.internal":          "Something went wrong, please try again",
	},
	"zh": {
		"health.ok":               "好的",
		"error.invalid":           "请求无效",
		"error.unknown_slot":      "答案与本问卷的题目不匹配",
		"error.already_submitted": "该问卷已提交",
		"error.forbidden":         "无权执行此操作",
		"error.not_found":         "未找到",
		"error.conflict":          "已存在",
		"error.unauthorized":      "请先登录",
		"error.fields":            "部分答案未能保存",
		"error.internal":          "服务器错误，请稍后重试",
	},
}

// T returns the translated string for key in locale; falls back to English.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if m, ok := translations["en"]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return key
}
