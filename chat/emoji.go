package chat

import "strings"

// shortcodePairs 微信文本中的 [表情] 写法与对应 Unicode 表情，按 strings.NewReplacer 的参数顺序成对排列。
var shortcodePairs = []string{
	"[微笑]", "😊",
	"[笑]", "😄",
	"[大笑]", "😂",
	"[呲牙]", "😁",
	"[嘻嘻]", "😆",
	"[偷笑]", "😏",
	"[害羞]", "😳",
	"[可爱]", "🥰",
	"[调皮]", "😜",
	"[得意]", "😎",
	"[龇牙]", "😬",
	"[鼓掌]", "👏",
	"[呲牙笑]", "😁",
	"[憨笑]", "🤪",
	"[难过]", "😔",
	"[流泪]", "😢",
	"[大哭]", "😭",
	"[伤心]", "💔",
	"[失望]", "😞",
	"[恐惧]", "😱",
	"[尴尬]", "😓",
	"[汗]", "💦",
	"[抓狂]", "😫",
	"[怒]", "😡",
	"[发怒]", "😠",
	"[生气]", "🤬",
	"[委屈]", "🥺",
	"[惊讶]", "😲",
	"[惊恐]", "😨",
	"[惊吓]", "😱",
	"[惊喜]", "🤩",
	"[疑问]", "❓",
	"[思考]", "🤔",
	"[紧张]", "😰",
	"[捂脸]", "🤦",
	"[晕]", "😵",
	"[衰]", "😣",
	"[悠闲]", "😌",
	"[奋斗]", "💪",
	"[发呆]", "😐",
	"[睡]", "😴",
	"[睡觉]", "😴",
	"[疲惫]", "😩",
	"[困]", "😫",
	"[口罩]", "😷",
	"[感冒]", "🤒",
	"[生病]", "🤢",
	"[吐]", "🤮",
	"[瞌睡]", "😪",
	"[闭嘴]", "🤐",
	"[傻眼]", "😳",
	"[色]", "😍",
	"[嘴唇]", "👄",
	"[亲亲]", "😘",
	"[互相亲]", "💏",
	"[吓]", "😨",
	"[冷汗]", "😅",
	"[阴险]", "😏",
	"[嘘]", "🤫",
	"[右哼哼]", "😤",
	"[左哼哼]", "😒",
	"[给力]", "👍",
	"[差劲]", "👎",
	"[举手]", "🙋",
	"[拜拜]", "👋",
	"[加油]", "💪",
	"[合十]", "🙏",
	"[猪头]", "🐷",
	"[猪]", "🐖",
	"[熊猫]", "🐼",
	"[兔子]", "🐰",
	"[小狗]", "🐶",
	"[狗]", "🐕",
	"[猫咪]", "🐱",
	"[猫]", "🐈",
	"[猴子]", "🐒",
	"[羊]", "🐑",
	"[老虎]", "🐯",
	"[蛇]", "🐍",
	"[鸡]", "🐔",
	"[公鸡]", "🐓",
	"[青蛙]", "🐸",
	"[西瓜]", "🍉",
	"[啤酒]", "🍺",
	"[咖啡]", "☕",
	"[蛋糕]", "🍰",
	"[吃瓜]", "🍉",
	"[饭]", "🍚",
	"[苹果]", "🍎",
	"[甜品]", "🧁",
	"[红酒]", "🍷",
	"[面条]", "🍜",
	"[礼物]", "🎁",
	"[红包]", "🧧",
	"[花]", "🌸",
	"[玫瑰]", "🌹",
	"[枯萎]", "🥀",
	"[爱心]", "❤️",
	"[心碎]", "💔",
	"[拥抱]", "🤗",
	"[强]", "💪",
	"[弱]", "👎",
	"[拍照]", "📷",
	"[火]", "🔥",
	"[溜]", "🏃",
	"[炸弹]", "💣",
	"[刀]", "🔪",
	"[足球]", "⚽",
	"[篮球]", "🏀",
	"[毛线]", "🧶",
	"[太阳]", "☀️",
	"[月亮]", "🌙",
	"[雨]", "🌧️",
	"[雪]", "❄️",
	"[闪电]", "⚡",
	"[阴天]", "☁️",
	"[赞]", "👍",
	"[嗯]", "😐",
	"[抠鼻]", "👃",
	"[吐舌]", "😝",
	"[可怜]", "🥺",
	"[白眼]", "🙄",
	"[右太极]", "☯️",
	"[左太极]", "☯️",
	"[骷髅]", "💀",
	"[嘿哈]", "✌️",
	"[奸笑]", "😏",
	"[机智]", "😎",
	"[耶]", "✌️",
	"[面对疗伤]", "🤒",
	"[摊手]", "🤷",
	"[车]", "🚗",
	"[车厢]", "🚃",
	"[飞机]", "✈️",
	"[火车]", "🚄",
	"[自行车]", "🚲",
	"[圣诞树]", "🎄",
	"[圣诞老人]", "🎅",
	"[灯笼]", "🏮",
	"[鞭炮]", "🧨",
	"[烟花]", "🎆",
	"[NO]", "🙅",
	"[点赞]", "👍",
	"[握手]", "🤝",
	"[胜利]", "✌️",
	"[抱拳]", "🙏",
	"[勾引]", "💋",
	"[拳头]", "👊",
	"[OK]", "👌",
	"[跳跳]", "💃",
	"[发抖]", "😰",
	"[转圈]", "😵‍💫",
	"[打脸]", "😣👋",
	"[破涕为笑]", "😂",
	"[脸红]", "😊",
	"[嫌弃]", "😒",
	"[皱眉]", "😞",
	"[擦汗]", "😅",
	"[撇嘴]", "😏",
	"[偷看]", "👀",
	"[托腮]", "🤔",
	"[眨眼]", "😉",
	"[泪奔]", "😭",
	"[石化]", "😶",
	"[喷血]", "🥵",
	"[笑哭]", "😂",
	"[doge]", "🐶",
	"[滑稽]", "🤡",
	"[疼]", "🤕",
	"[再见]", "👋",
	"[鄙视]", "😠",
	"[财迷]", "🤑",
	"[吃惊]", "😲",
	"[悲催]", "😭",
	"[激动]", "🤩",
	"[酷]", "😎",
	"[抱抱]", "🤗",
	"[坏笑]", "😏",
	"[飙泪]", "😭",
	"[打call]", "👏",
	"[666]", "666",
	"[233]", "233",
	"[服]", "🙇",
	"[作揖]", "🙇",
	"[发财]", "🤑",
	"[来看我]", "👀",
	"[别想歪]", "🙄",
	"[加我]", "🙋",
	"[叹气]", "😮‍💨",
	"[裂开]", "😱",
	"[羡慕]", "🤩",
	"[求抱抱]", "🤗",
	"[我想静静]", "😶",
	"[允悲]", "😔",
	"[泪流满面]", "😭",
	"[斜眼]", "🙄",
	"[跪了]", "🧎",
	"[潜水]", "🤿",
	"[柠檬]", "🍋",
	"[冷漠]", "😐",
	"[舔屏]", "👅",
	"[二哈]", "🐶",
	"[牛年吉祥]", "🐂",
	"[春节快乐]", "🧧",
	"[福到了]", "福",
	"[黑脸]", "🌚",
	"[捞月亮]", "🌝",
	"[旺财]", "🐕",
}

var shortcodeReplacer = strings.NewReplacer(shortcodePairs...)

// ReplaceShortcodes 将已知的表情短码替换为对应的 Unicode 表情，未知短码保持原样。
func ReplaceShortcodes(text string) string {
	if !strings.Contains(text, "[") {
		return text
	}
	return shortcodeReplacer.Replace(text)
}
