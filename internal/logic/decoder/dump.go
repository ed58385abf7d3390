package decoder

// SignatureDump 是一次签名解码的完整审计输出。
type SignatureDump struct {
	Signature    string            `json:"signature"`
	Slot         uint64            `json:"slot"`
	BlockTime    *int64            `json:"block_time"`
	Instructions []InstructionDump `json:"instructions"`
}

// InstructionDump 记录一条 Drift 指令的解码快照。
// 解码失败的指令仍会出现在 dump 中，Kind 为 nil、Args 为 nil。
type InstructionDump struct {
	Index         int           `json:"index"`
	Discriminator string        `json:"discriminator"`
	RawDataB64    string        `json:"raw_data_b64"`
	DataLen       int           `json:"data_len"`
	ProgramID     string        `json:"program_id"`
	Kind          *string       `json:"kind"`
	Args          any           `json:"args"`
	Accounts      []AccountDump `json:"accounts"`
}

// AccountDump 描述指令引用的一个账户。
// MessageIndex 是交易全局账户表（静态 ++ 加载可写 ++ 加载只读）内的索引。
type AccountDump struct {
	Position     int     `json:"position"`
	MessageIndex int     `json:"accountIndex"`
	Pubkey       string  `json:"pubkey"`
	IsSigner     bool    `json:"is_signer"`
	IsWritable   bool    `json:"is_writable"`
	Role         *string `json:"role"`
}
