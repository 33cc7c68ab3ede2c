package providers

// eastmoneyItems F10字段代码到报表项目名
var eastmoneyItems = map[string]string{
	// 资产负债表
	"MONETARYFUNDS":           "货币资金",
	"TRADE_FINASSET_NOTFVTPL": "交易性金融资产",
	"NOTE_RECE":               "应收票据",
	"ACCOUNTS_RECE":           "应收账款",
	"PREPAYMENT":              "预付款项",
	"OTHER_RECE":              "其他应收款",
	"INVENTORY":               "存货",
	"TOTAL_CURRENT_ASSETS":    "流动资产合计",
	"LONG_EQUITY_INVEST":      "长期股权投资",
	"FIXED_ASSET":             "固定资产",
	"CIP":                     "在建工程",
	"INTANGIBLE_ASSET":        "无形资产",
	"GOODWILL":                "商誉",
	"DEFER_TAX_ASSET":         "递延所得税资产",
	"TOTAL_NONCURRENT_ASSETS": "非流动资产合计",
	"TOTAL_ASSETS":            "资产总计",
	"SHORT_LOAN":              "短期借款",
	"ACCOUNTS_PAYABLE":        "应付账款",
	"ADVANCE_RECEIVABLES":     "预收款项",
	"CONTRACT_LIAB":           "合同负债",
	"STAFF_SALARY_PAYABLE":    "应付职工薪酬",
	"TAX_PAYABLE":             "应交税费",
	"TOTAL_CURRENT_LIAB":      "流动负债合计",
	"LONG_LOAN":               "长期借款",
	"BOND_PAYABLE":            "应付债券",
	"TOTAL_NONCURRENT_LIAB":   "非流动负债合计",
	"TOTAL_LIABILITIES":       "负债合计",
	"SHARE_CAPITAL":           "实收资本(或股本)",
	"CAPITAL_RESERVE":         "资本公积",
	"SURPLUS_RESERVE":         "盈余公积",
	"UNASSIGN_RPOFIT":         "未分配利润",
	"TOTAL_PARENT_EQUITY":     "归属于母公司股东权益合计",
	"MINORITY_EQUITY":         "少数股东权益",
	"TOTAL_EQUITY":            "所有者权益合计",
	"TOTAL_LIAB_EQUITY":       "负债和所有者权益总计",

	// 利润表
	"TOTAL_OPERATE_INCOME":    "营业总收入",
	"OPERATE_INCOME":          "营业收入",
	"TOTAL_OPERATE_COST":      "营业总成本",
	"OPERATE_COST":            "营业成本",
	"OPERATE_TAX_ADD":         "税金及附加",
	"SALE_EXPENSE":            "销售费用",
	"MANAGE_EXPENSE":          "管理费用",
	"RESEARCH_EXPENSE":        "研发费用",
	"FINANCE_EXPENSE":         "财务费用",
	"INVEST_INCOME":           "投资收益",
	"OPERATE_PROFIT":          "营业利润",
	"NONBUSINESS_INCOME":      "营业外收入",
	"NONBUSINESS_EXPENSE":     "营业外支出",
	"TOTAL_PROFIT":            "利润总额",
	"INCOME_TAX":              "所得税费用",
	"NETPROFIT":               "净利润",
	"PARENT_NETPROFIT":        "归属于母公司股东的净利润",
	"MINORITY_INTEREST":       "少数股东损益",
	"DEDUCT_PARENT_NETPROFIT": "扣除非经常性损益后的净利润",
	"BASIC_EPS":               "基本每股收益",
	"DILUTED_EPS":             "稀释每股收益",

	// 现金流量表
	"SALES_SERVICES":          "销售商品、提供劳务收到的现金",
	"TOTAL_OPERATE_INFLOW":    "经营活动现金流入小计",
	"BUY_SERVICES":            "购买商品、接受劳务支付的现金",
	"PAY_STAFF_CASH":          "支付给职工以及为职工支付的现金",
	"PAY_ALL_TAX":             "支付的各项税费",
	"TOTAL_OPERATE_OUTFLOW":   "经营活动现金流出小计",
	"NETCASH_OPERATE":         "经营活动产生的现金流量净额",
	"CONSTRUCT_LONG_ASSET":    "购建固定资产、无形资产和其他长期资产支付的现金",
	"NETCASH_INVEST":          "投资活动产生的现金流量净额",
	"ASSIGN_DIVIDEND_PORFIT":  "分配股利、利润或偿付利息支付的现金",
	"NETCASH_FINANCE":         "筹资活动产生的现金流量净额",
	"CCE_ADD":                 "现金及现金等价物净增加额",
	"BEGIN_CCE":               "期初现金及现金等价物余额",
	"END_CCE":                 "期末现金及现金等价物余额",
}

// EastmoneyItemLabel 字段代码对应的项目名，未收录的代码原样返回
func EastmoneyItemLabel(code string) string {
	if label, ok := eastmoneyItems[code]; ok {
		return label
	}
	return code
}
